// Package dealrush wires the flash-sale core together: the Redis-backed
// cache-resilience layer, the distributed lock and id generator, the
// PostgreSQL store of record, and the seckill order engine.
//
// The root package is assembly only. The interesting parts live below:
//
//   - [github.com/dealrush/dealrush/pkg/cache]: cache-aside client
//     with penetration and breakdown protection
//   - [github.com/dealrush/dealrush/pkg/lock]: distributed lock with
//     owner-token release
//   - [github.com/dealrush/dealrush/pkg/idgen]: time-ordered id
//     generation over a shared counter
//   - [github.com/dealrush/dealrush/seckill]: the purchase state
//     machine and voucher catalog
//
// # Usage
//
//	svc, err := dealrush.New(ctx, dealrush.Config{
//	    RedisURL: os.Getenv("REDIS_URL"),
//	    DB:       dbCfg,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	orderID, err := svc.Engine.Purchase(ctx, userID, voucherID)
//
// HTTP delivery, authentication, and DTO shaping are deliberately left
// to the consuming application.
package dealrush
