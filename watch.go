package armature

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Batch is a fresh load of watched sources.
type Batch struct {
	Events   []Event
	Version  int64     // Increments per reload (starts at 1)
	LoadedAt time.Time // When loaded
	Cause    string    // What triggered the load (e.g., "initial", "file-changed")
}

// debounceDelay groups bursts of change notifications into one reload.
const debounceDelay = 100 * time.Millisecond

// Watch loads sources and reloads them every time one of them reports a
// change. The first batch is the initial load. Both channels close when ctx
// is cancelled or no source can be watched.
//
// Batches only carry events; apply them with Executive.Apply from the
// goroutine that owns the executive.
func Watch(ctx context.Context, sources ...Source) (<-chan Batch, <-chan error, error) {
	initial, err := loadAll(ctx, sources)
	if err != nil {
		return nil, nil, err
	}

	batchCh := make(chan Batch)
	errorCh := make(chan error)
	go watchLoop(ctx, sources, initial, batchCh, errorCh)
	return batchCh, errorCh, nil
}

// Apply merges a watched batch at priority p.
func (e *Executive) Apply(ctx context.Context, b Batch, p Priority) error {
	events := make([]Event, len(b.Events))
	copy(events, b.Events)
	for i := range events {
		events[i].Priority = p
	}
	_, err := e.config.Apply(events, e)
	e.log.Info().Int64("version", b.Version).Str("cause", b.Cause).Int("events", len(events)).Msg("configuration reloaded")
	return err
}

func loadAll(ctx context.Context, sources []Source) ([]Event, error) {
	var all []Event
	for _, src := range sources {
		events, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load source %s: %w", src.Name(), err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func watchLoop(ctx context.Context, sources []Source, initial []Event, batchCh chan<- Batch, errorCh chan<- error) {
	defer close(batchCh)
	defer close(errorCh)

	version := int64(1)
	select {
	case batchCh <- Batch{Events: initial, Version: version, LoadedAt: time.Now(), Cause: "initial"}:
	case <-ctx.Done():
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var changeChannels []<-chan ChangeEvent
	for _, src := range sources {
		ch, err := src.Watch(watchCtx)
		if err != nil {
			if errors.Is(err, ErrWatchNotSupported) {
				continue
			}
			select {
			case errorCh <- fmt.Errorf("watch source %s: %w", src.Name(), err):
			case <-ctx.Done():
				return
			}
			continue
		}
		changeChannels = append(changeChannels, ch)
	}
	if len(changeChannels) == 0 {
		return
	}

	merged := merge(watchCtx, changeChannels)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-merged:
			if !ok {
				return
			}
			pending = event.Cause
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
			} else {
				timer.Reset(debounceDelay)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			events, err := loadAll(ctx, sources)
			if err != nil {
				select {
				case errorCh <- fmt.Errorf("reload failed: %w", err):
				case <-ctx.Done():
					return
				}
				continue
			}
			version++
			select {
			case batchCh <- Batch{Events: events, Version: version, LoadedAt: time.Now(), Cause: pending}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// merge fans change channels into one. The result closes once every input
// has closed or ctx is done.
func merge(ctx context.Context, channels []<-chan ChangeEvent) <-chan ChangeEvent {
	out := make(chan ChangeEvent)
	go func() {
		defer close(out)
		for {
			cases := make([]reflect.SelectCase, len(channels)+1)
			cases[0] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())}
			for i, ch := range channels {
				cases[i+1] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
			}

			chosen, value, ok := reflect.Select(cases)
			if chosen == 0 {
				return
			}
			if !ok {
				channels = append(channels[:chosen-1], channels[chosen:]...)
				if len(channels) == 0 {
					return
				}
				continue
			}
			event, ok := value.Interface().(ChangeEvent)
			if !ok {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
