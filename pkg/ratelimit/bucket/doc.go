// Package bucket provides a token bucket rate limiter.
//
// Tokens refill at a fixed rate up to the burst size; every event takes
// one. Wait reserves a token up front, so concurrent waiters are served in
// the order they arrived and a waiter whose context ends returns its token:
//
//	limiter := bucket.New(10, 5) // 10 per second, bursts of 5
//	for _, job := range jobs {
//		if err := limiter.Wait(ctx); err != nil {
//			return err
//		}
//		submit(job)
//	}
//
// The supervisor uses it to pace producers, see supervisor.Throttle.
package bucket
