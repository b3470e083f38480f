package ethbind

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Identifies a subscription within its Contract. Ids are never reused.
type SubscriptionId uint64

/*
Receives decoded logs, or an error, but never both. Called once with the logs
already matching the filter when the subscription becomes active, then once per
delivery tick with the logs that appeared since.

Within a tick, callbacks run one at a time in subscription order. The first
call runs on a separate goroutine and may overlap callbacks of other
subscriptions. Callbacks may call "Unsubscribe" and "Contract.Close".
*/
type SubscriptionCallback func(logs []LogEntry, err error)

type subscriptionState byte

const (
	subRequesting subscriptionState = iota
	subActive
	subRemoved
)

func (self subscriptionState) String() string {
	switch self {
	case subRequesting:
		return "requesting"
	case subActive:
		return "active"
	case subRemoved:
		return "removed"
	default:
		return ""
	}
}

type subscription struct {
	id       SubscriptionId
	event    string
	filter   LogFilter
	callback SubscriptionCallback

	// Guarded by Contract.lock. "filterId" is set when becoming active.
	state    subscriptionState
	filterId FilterId
}

// Uninstalling a filter after a failed or abandoned creation.
const releaseTimeout = 10 * time.Second

/*
Subscribes to logs of the named event, or of all events when the name is
empty. The filter's address is replaced with the contract address, and its
first topic with the event selector (or a wildcard).

Returns the new id right away; the log filter is created in the background. If
that fails, the callback receives the error and the id is discarded. Unknown
event names fail immediately with "*UnknownEventError".
*/
func (self *Contract) Subscribe(eventName string, filter LogFilter, callback SubscriptionCallback) (SubscriptionId, error) {
	if callback == nil {
		return 0, errors.New("missing subscription callback")
	}

	var topic interface{}
	if eventName != "" {
		event, ok := self.events[eventName]
		if !ok {
			return 0, &UnknownEventError{Name: eventName, Valid: self.eventNames()}
		}
		topic = event.Descriptor.Selector
	}

	self.lock.Lock()
	if self.closed {
		self.lock.Unlock()
		return 0, ErrContractClosed
	}

	filter.Address = nil
	if self.address != ZeroAddress {
		filter.Address = []Address{self.address}
	}
	filter.Topics = withFirstTopic(filter.Topics, topic)

	sub := &subscription{
		id:       self.nextSubId,
		event:    eventName,
		filter:   filter,
		callback: callback,
		state:    subRequesting,
	}
	self.nextSubId++
	self.subs[sub.id] = sub
	self.creating.Add(1)

	if self.delivery == nil {
		interval := self.opts.SubscriptionInterval
		self.delivery = ScheduleAfter(self.ctx, interval, interval, self.deliveryTick)
	}
	self.lock.Unlock()

	go self.createFilter(sub)
	return sub.id, nil
}

/*
Removes the subscription and uninstalls its log filter. After this returns, the
callback isn't invoked again. Unknown ids, including ids already unsubscribed,
fail with "*UnknownSubscriptionError".

A subscription whose filter is still being created is removed immediately; the
filter is uninstalled as soon as it's created.
*/
func (self *Contract) Unsubscribe(ctx context.Context, id SubscriptionId) error {
	self.lock.Lock()
	sub, ok := self.subs[id]
	if !ok {
		self.lock.Unlock()
		return &UnknownSubscriptionError{Id: id}
	}
	delete(self.subs, id)
	prev := sub.state
	sub.state = subRemoved
	self.lock.Unlock()

	if prev != subActive {
		return nil
	}
	ActiveSubscriptions.Dec()
	SubscriptionsRemoved.Inc()
	return self.releaseFilter(ctx, sub.filterId)
}

/*
Stops delivery and uninstalls the filters of active subscriptions. Filters
still being created are uninstalled by their creators. Uninstall errors are
combined into one. Subsequent calls do nothing.

No callback starts after this is called. When no callback is running, also waits
for delivery and filter creation to end. Otherwise, which includes calling Close
from a callback, returns without waiting for them.
*/
func (self *Contract) Close(ctx context.Context) error {
	self.lock.Lock()
	if self.closed {
		self.lock.Unlock()
		return nil
	}
	self.closed = true
	delivery := self.delivery
	busy := self.callbacks > 0

	var active []*subscription
	for id, sub := range self.subs {
		if sub.state == subActive {
			active = append(active, sub)
		}
		sub.state = subRemoved
		delete(self.subs, id)
	}
	self.lock.Unlock()
	sortSubscriptions(active)

	self.cancel()
	if delivery != nil {
		if busy {
			delivery.Cancel()
		} else {
			delivery.Stop()
		}
	}
	if !busy {
		self.creating.Wait()
	}

	var result *multierror.Error
	for _, sub := range active {
		ActiveSubscriptions.Dec()
		SubscriptionsRemoved.Inc()
		err := self.releaseFilter(ctx, sub.filterId)
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (self *Contract) createFilter(sub *subscription) {
	defer self.creating.Done()
	logger := self.logger.Named("subscriptions")

	filterId, err := self.client.NewFilter(self.ctx, sub.filter)
	if err != nil {
		self.failCreation(sub, errors.Wrap(err, `failed to create log filter`))
		return
	}

	logs, err := self.client.GetFilterLogs(self.ctx, filterId)
	if err != nil {
		err = errors.Wrap(err, `failed to fetch initial logs`)
	} else {
		logs, err = self.ParseEventLogs(logs)
	}
	if err != nil {
		self.abandonFilter(filterId)
		self.failCreation(sub, err)
		return
	}

	if !self.beginCallback(sub, subRequesting) {
		self.abandonFilter(filterId)
		return
	}

	LogsDelivered.Add(float64(len(logs)))
	self.invoke(sub, logs, nil)

	self.lock.Lock()
	if sub.state != subRequesting || self.subs[sub.id] != sub {
		self.lock.Unlock()
		self.abandonFilter(filterId)
		return
	}
	sub.filterId = filterId
	sub.state = subActive
	self.lock.Unlock()

	ActiveSubscriptions.Inc()
	SubscriptionsCreated.Inc()
	logger.Debug("subscription active", "id", sub.id, "event", sub.event, "filter", filterId)
}

func (self *Contract) failCreation(sub *subscription, err error) {
	self.lock.Lock()
	deliver := sub.state == subRequesting && !self.closed
	if deliver {
		self.callbacks++
	}
	if self.subs[sub.id] == sub {
		delete(self.subs, sub.id)
	}
	sub.state = subRemoved
	self.lock.Unlock()

	DeliveryErrors.WithLabelValues(stageCreate).Inc()
	self.logger.Named("subscriptions").Warn("subscription failed", "id", sub.id, "error", err)
	if deliver {
		self.invoke(sub, nil, err)
	}
}

// Releases a filter no subscription owns, even if the contract is closing.
func (self *Contract) abandonFilter(id FilterId) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(self.ctx), releaseTimeout)
	defer cancel()
	_ = self.releaseFilter(ctx, id)
}

func (self *Contract) releaseFilter(ctx context.Context, id FilterId) error {
	_, err := self.client.UninstallFilter(ctx, id)
	if err != nil {
		self.logger.Named("subscriptions").Warn("failed to uninstall log filter", "filter", id, "error", err)
		return errors.Wrapf(err, `failed to uninstall filter %v`, id)
	}
	return nil
}

/*
Reserves a callback run for a subscription still in the given state. Each
successful call must be followed by exactly one "invoke".
*/
func (self *Contract) beginCallback(sub *subscription, state subscriptionState) bool {
	self.lock.Lock()
	defer self.lock.Unlock()
	if self.closed || self.subs[sub.id] != sub || sub.state != state {
		return false
	}
	self.callbacks++
	return true
}

func (self *Contract) endCallback() {
	self.lock.Lock()
	self.callbacks--
	self.lock.Unlock()
}

func (self *Contract) deliveryTick(ctx context.Context) bool {
	self.deliverChanges(ctx)
	return true
}

type fetchResult struct {
	logs []LogEntry
	err  error
}

/*
One delivery tick. Fetches the changes of every active filter concurrently and
waits for all of them, then runs callbacks in subscription order, skipping
subscriptions removed in the meantime. Failures are reported to the affected
subscription only.
*/
func (self *Contract) deliverChanges(ctx context.Context) {
	self.lock.Lock()
	active := make([]*subscription, 0, len(self.subs))
	for _, sub := range self.subs {
		if sub.state == subActive {
			active = append(active, sub)
		}
	}
	self.lock.Unlock()

	if len(active) == 0 {
		return
	}
	sortSubscriptions(active)

	logger := self.logger.Named("subscriptions")
	logger.Trace("fetching filter changes", "subscriptions", len(active))

	results := make([]fetchResult, len(active))
	var group errgroup.Group
	if self.opts.FetchConcurrency > 0 {
		group.SetLimit(self.opts.FetchConcurrency)
	}
	for i, sub := range active {
		i, sub := i, sub
		group.Go(func() error {
			logs, err := self.client.GetFilterChanges(ctx, sub.filterId)
			results[i] = fetchResult{logs: logs, err: err}
			return nil
		})
	}
	_ = group.Wait()

	if ctx.Err() != nil {
		return
	}

	for i, sub := range active {
		if !self.beginCallback(sub, subActive) {
			continue
		}

		res := results[i]
		if res.err != nil {
			DeliveryErrors.WithLabelValues(stageFetch).Inc()
			logger.Warn("failed to fetch filter changes", "id", sub.id, "filter", sub.filterId, "error", res.err)
			self.invoke(sub, nil, errors.Wrapf(res.err, `failed to fetch changes of filter %v`, sub.filterId))
			continue
		}

		logs, err := self.ParseEventLogs(res.logs)
		if err != nil {
			DeliveryErrors.WithLabelValues(stageDecode).Inc()
			logger.Error("failed to decode filter changes", "id", sub.id, "error", err)
			self.invoke(sub, nil, err)
			continue
		}

		LogsDelivered.Add(float64(len(logs)))
		self.invoke(sub, logs, nil)
	}
}

/*
Runs the callback reserved with "beginCallback", recovering from panics. A panic
while handling logs is reported back to the same callback as an error.
*/
func (self *Contract) invoke(sub *subscription, logs []LogEntry, err error) {
	defer self.endCallback()

	val := callSafely(sub.callback, logs, err)
	if val == nil {
		return
	}

	DeliveryErrors.WithLabelValues(stageCallback).Inc()
	self.logger.Named("subscriptions").Error("subscription callback panicked", "id", sub.id, "panic", val)
	if err != nil {
		return
	}

	val = callSafely(sub.callback, nil, errors.Errorf(`subscription %v callback panicked: %v`, sub.id, val))
	if val != nil {
		self.logger.Named("subscriptions").Error("subscription callback panicked on error", "id", sub.id, "panic", val)
	}
}

func callSafely(fun SubscriptionCallback, logs []LogEntry, err error) (val interface{}) {
	defer func() { val = recover() }()
	fun(logs, err)
	return nil
}

func withFirstTopic(topics []interface{}, first interface{}) []interface{} {
	out := make([]interface{}, len(topics))
	copy(out, topics)
	if len(out) == 0 {
		out = append(out, nil)
	}
	out[0] = first
	return out
}
