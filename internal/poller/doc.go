// Package poller tracks one asynchronous job on a remote job service.
//
// A Poller submits a job, then polls its status at a fixed interval until
// the job completes or fails. Polls are strictly sequential: the next one is
// scheduled only after the previous response has been handled. Terminal
// status fires exactly one of OnComplete or OnError; Cancel and Reset
// guarantee that neither fires afterwards, and responses still in flight are
// discarded.
//
//	p := poller.New(poller.NewHTTPTransport(url, nil))
//	id, err := p.Submit(ctx, "CALCULATE_DEBT_PAYOFF", data, poller.Callbacks{})
//	status, err := p.Wait(ctx)
package poller
