/*
Package ratelimit holds the rate limiting primitives used to pace work
entering a taskflow pipeline.

  - bucket: Token bucket rate limiter allowing bursts

Concurrency is already bounded by the worker pool, so the limiters here only
shape arrival rate:

	limiter := bucket.New(10, 5) // 10 jobs/sec, burst of 5
	producer := supervisor.Throttle(limiter, supervisor.SliceProducer(jobs...))
*/
package ratelimit
