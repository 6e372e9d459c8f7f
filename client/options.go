package client

import "time"

type Option func(*options)

type options struct {
	retryCount       int
	retryWaitTime    time.Duration
	retryMaxWaitTime time.Duration
}

// The defaults are sized for the inspection API: every call is a single
// backend round trip behind a short handler timeout, so a few quick retries
// cover transient failures, and anything longer should surface to the caller.
func newClientOptions() *options {
	return &options{
		retryCount:       3,
		retryWaitTime:    250 * time.Millisecond,
		retryMaxWaitTime: 2 * time.Second,
	}
}

func RetryCount(count int) Option {
	return func(conf *options) {
		conf.retryCount = count
	}
}

func RetryWaitTime(duration time.Duration) Option {
	return func(conf *options) {
		conf.retryWaitTime = duration
	}
}

func RetryMaxWaitTime(duration time.Duration) Option {
	return func(conf *options) {
		conf.retryMaxWaitTime = duration
	}
}
