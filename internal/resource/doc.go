// Package resource throttles calls to the block authority.
//
// Every pool of a manager shares one Controller. It bounds two things:
//
//   - Concurrency: the number of authority calls in flight (weighted semaphore)
//   - Rate: authority calls per second (token bucket)
//
// A burst of pools running dry at the same time, for example right after
// start-up, otherwise turns into a burst of requests against the backend.
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentRenewals: 4,
//	    RenewalsPerSecond:     50,
//	})
//
//	release, err := rc.Acquire(ctx)
//	if err != nil {
//	    return err // ctx cancelled while waiting
//	}
//	defer release()
//
// A nil *Controller is valid and imposes no limits.
package resource
