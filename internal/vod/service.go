// SPDX-License-Identifier: MIT

package vod

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/reovod/reovod/internal/log"
	"github.com/reovod/reovod/internal/reolink"
)

// Device is the camera surface the service depends on.
type Device interface {
	Search(ctx context.Context, channel int, start, end time.Time, stream string, statusOnly bool) (*reolink.SearchResult, error)
	DeviceTime(ctx context.Context) (*reolink.DeviceTime, error)
	ChannelStatuses(ctx context.Context) ([]reolink.ChannelStatus, error)
	Snapshot(ctx context.Context, channel int) ([]byte, error)
	OpenClip(ctx context.Context, name string) (*reolink.Clip, error)
}

// Persister stores cached months across restarts.
type Persister interface {
	SaveMonths(ctx context.Context, camera string, channel int, snaps []MonthSnapshot) error
	LoadMonths(ctx context.Context, camera string, channel int) ([]MonthSnapshot, error)
}

// CameraSpec configures one camera for the service.
type CameraSpec struct {
	Name     string
	Device   Device
	Channels []int
	Stream   StreamType
	Backfill int
}

// ErrUnknownChannel is returned for camera/channel pairs not configured.
var ErrUnknownChannel = errors.New("unknown camera or channel")

// Channel tracks the recording history of one camera channel.
type Channel struct {
	camera   string
	channel  int
	dev      Device
	stream   StreamType
	backfill int
	cache    *Cache
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex // serializes device fetches and tz updates
	tz *Timezone
}

// Camera returns the configured camera name.
func (ch *Channel) Camera() string { return ch.camera }

// Number returns the device channel index.
func (ch *Channel) Number() int { return ch.channel }

// Cache exposes the channel's recording cache.
func (ch *Channel) Cache() *Cache { return ch.cache }

// Snapshot fetches a live JPEG still from the channel.
func (ch *Channel) Snapshot(ctx context.Context) ([]byte, error) {
	return ch.dev.Snapshot(ctx, ch.channel)
}

// OpenClip streams a recording file by its device name.
func (ch *Channel) OpenClip(ctx context.Context, name string) (*reolink.Clip, error) {
	return ch.dev.OpenClip(ctx, name)
}

// Timezone returns the channel's device timezone, fetching it on first use.
func (ch *Channel) Timezone(ctx context.Context) (*Timezone, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.timezoneLocked(ctx)
}

func (ch *Channel) timezoneLocked(ctx context.Context) (*Timezone, error) {
	if ch.tz != nil {
		return ch.tz, nil
	}
	dt, err := ch.dev.DeviceTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("device time: %w", err)
	}
	ch.tz = NewTimezone(dt)
	return ch.tz, nil
}

func (ch *Channel) applyResult(res *reolink.SearchResult, tz *Timezone) {
	for _, st := range res.Statuses {
		ch.cache.UpsertStatus(StatusFromSearch(st))
	}
	for _, f := range res.Files {
		stream, ok := ParseStreamType(f.Type)
		if !ok {
			stream = ch.stream
		}
		start := tz.Resolve(f.StartTime)
		end := tz.Resolve(f.EndTime)
		ch.cache.UpsertFile(start, end, stream, FileInfo{
			Name:      f.Name,
			Size:      int64(f.Size),
			Width:     int(f.Width),
			Height:    int(f.Height),
			FrameRate: int(f.FrameRate),
			Trigger:   TriggerFromName(f.Name),
		})
	}
}

// fetch runs one full search over [start, end] and folds the result into the
// cache, extending the covered window.
func (ch *Channel) fetch(ctx context.Context, tz *Timezone, start, end time.Time) error {
	res, err := ch.dev.Search(ctx, ch.channel, start, end, string(ch.stream), false)
	if err != nil {
		return err
	}
	ch.applyResult(res, tz)
	ch.cache.ExtendCovered(start, end)
	return nil
}

// fetchRange fills [start, end] month by month. Device searches return day
// statuses per month, so chunking keeps the status table consistent.
func (ch *Channel) fetchRange(ctx context.Context, tz *Timezone, start, end time.Time) error {
	for ym := YearMonthOf(start); !ym.After(YearMonthOf(end)); ym = ym.Next() {
		s, e := start, end
		if monthStart := ym.Date(1, start.Location()); s.Before(monthStart) {
			s = monthStart
		}
		if monthEnd := ym.Next().Date(1, end.Location()).Add(-time.Second); e.After(monthEnd) {
			e = monthEnd
		}
		metricGapFetches.WithLabelValues(ch.camera, strconv.Itoa(ch.channel)).Inc()
		if err := ch.fetch(ctx, tz, s, e); err != nil {
			return err
		}
	}
	return nil
}

// Refresh pulls today's recordings and, while the history start is unknown,
// walks month statuses backwards until it finds the oldest footage still on
// the device. The walkback is bounded by the configured backfill horizon.
func (ch *Channel) Refresh(ctx context.Context) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	timer := time.Now()
	err := ch.refreshLocked(ctx)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	chLabel := strconv.Itoa(ch.channel)
	metricRefreshTotal.WithLabelValues(ch.camera, chLabel, outcome).Inc()
	metricRefreshDuration.WithLabelValues(ch.camera).Observe(time.Since(timer).Seconds())
	metricCachedRecordings.WithLabelValues(ch.camera, chLabel).Set(float64(ch.cache.Len()))
	return err
}

func (ch *Channel) refreshLocked(ctx context.Context) error {
	dt, err := ch.dev.DeviceTime(ctx)
	if err != nil {
		if ch.tz == nil {
			return fmt.Errorf("device time: %w", err)
		}
		ch.log.Warn().Err(err).Msg("device time refresh failed, keeping cached timezone")
	} else {
		ch.tz = NewTimezone(dt)
	}

	now := ch.tz.At(ch.now())
	today := DateOf(now)
	dayStart := time.Date(today.Year, today.Month, today.Day, 0, 0, 0, 0, now.Location())

	if err := ch.fetch(ctx, ch.tz, dayStart, now); err != nil {
		return fmt.Errorf("search today: %w", err)
	}

	floor := YearMonthOf(now).Add(-ch.backfill)
	ch.cache.Trim(floor)

	if !ch.cache.AtStart() {
		min, _, ok := ch.cache.Months()
		if !ok {
			min = YearMonthOf(now).Next()
		}
		for ym := min.Prev(); !ym.Before(floor); ym = ym.Prev() {
			monthStart := ym.Date(1, now.Location())
			monthEnd := ym.Next().Date(1, now.Location()).Add(-time.Second)
			res, err := ch.dev.Search(ctx, ch.channel, monthStart, monthEnd, string(ch.stream), true)
			if err != nil {
				return fmt.Errorf("status walkback %s: %w", ym, err)
			}
			if len(res.Statuses) == 0 {
				ch.cache.MarkAtStart()
				break
			}
			ch.applyResult(res, ch.tz)
		}
	}

	ch.log.Debug().
		Int(log.FieldChannel, ch.channel).
		Int("recordings", ch.cache.Len()).
		Bool("at_start", ch.cache.AtStart()).
		Msg("channel refreshed")
	return nil
}

// Search returns recordings overlapping [start, end], fetching file detail
// from the device for any part of the range outside the covered window.
func (ch *Channel) Search(ctx context.Context, start, end time.Time) ([]*Recording, error) {
	ch.mu.Lock()
	tz, err := ch.timezoneLocked(ctx)
	if err != nil {
		ch.mu.Unlock()
		return nil, err
	}

	ls, le := tz.At(start), tz.At(end)
	if now := tz.At(ch.now()); le.After(now) {
		le = now
	}
	// Months before the oldest footage on the device are known empty once
	// the walkback found the history start.
	if min, _, ok := ch.cache.Months(); ok && ch.cache.AtStart() {
		if floor := min.Date(1, ls.Location()); ls.Before(floor) {
			ls = floor
		}
	}
	if le.Before(ls) {
		ch.mu.Unlock()
		return nil, nil
	}

	err = ch.fillGapsLocked(ctx, tz, ls, le)
	ch.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return ch.cache.Slice(ls, le), nil
}

func (ch *Channel) fillGapsLocked(ctx context.Context, tz *Timezone, start, end time.Time) error {
	min, max, ok := ch.cache.Window()
	if !ok {
		return ch.fetchRange(ctx, tz, start, end)
	}
	if start.Before(min) {
		if err := ch.fetchRange(ctx, tz, start, min); err != nil {
			return err
		}
	}
	if end.After(max) {
		if err := ch.fetchRange(ctx, tz, max, end); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the most recent cached recording.
func (ch *Channel) Latest() (*Recording, bool) {
	return ch.cache.Latest()
}

// MonthStatus returns the day status for one month, fetching it if the
// month is not cached yet. Months before the oldest footage return an empty
// status.
func (ch *Channel) MonthStatus(ctx context.Context, ym YearMonth) (Status, error) {
	if st, ok := ch.cache.StatusFor(ym); ok {
		return st, nil
	}
	if min, _, ok := ch.cache.Months(); ok && ch.cache.AtStart() && ym.Before(min) {
		return Status{YearMonth: ym}, nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	tz, err := ch.timezoneLocked(ctx)
	if err != nil {
		return Status{}, err
	}
	loc := tz.At(ch.now()).Location()
	res, err := ch.dev.Search(ctx, ch.channel, ym.Date(1, loc), ym.Next().Date(1, loc).Add(-time.Second), string(ch.stream), true)
	if err != nil {
		return Status{}, fmt.Errorf("month status %s: %w", ym, err)
	}
	ch.applyResult(res, tz)
	st, ok := ch.cache.StatusFor(ym)
	if !ok {
		st = Status{YearMonth: ym}
	}
	return st, nil
}

// Service owns all configured channels and runs the periodic refresh.
type Service struct {
	log      zerolog.Logger
	store    Persister
	cameras  []*camera
	channels []*Channel
	index    map[string]map[int]*Channel
	interval time.Duration
}

type camera struct {
	name string
	dev  Device
}

// Options tune service behavior.
type Options struct {
	Store           Persister
	RefreshInterval time.Duration
}

// New builds a service from camera specs. Cameras without explicit channels
// get channel 0.
func New(specs []CameraSpec, opts Options) *Service {
	s := &Service{
		log:      log.WithComponent("vod"),
		store:    opts.Store,
		index:    map[string]map[int]*Channel{},
		interval: opts.RefreshInterval,
	}
	for _, spec := range specs {
		cam := &camera{name: spec.Name, dev: spec.Device}
		s.cameras = append(s.cameras, cam)
		s.index[spec.Name] = map[int]*Channel{}

		channels := spec.Channels
		if len(channels) == 0 {
			channels = []int{0}
		}
		stream := spec.Stream
		if stream == "" {
			stream = StreamMain
		}
		backfill := spec.Backfill
		if backfill <= 0 {
			backfill = 12
		}
		for _, n := range channels {
			ch := &Channel{
				camera:   spec.Name,
				channel:  n,
				dev:      spec.Device,
				stream:   stream,
				backfill: backfill,
				cache:    NewCache(),
				now:      time.Now,
				log:      s.log.With().Str(log.FieldCamera, spec.Name).Int(log.FieldChannel, n).Logger(),
			}
			s.channels = append(s.channels, ch)
			s.index[spec.Name][n] = ch
		}
	}
	return s
}

// Channel looks up one configured channel.
func (s *Service) Channel(cameraName string, channel int) (*Channel, error) {
	if chs, ok := s.index[cameraName]; ok {
		if ch, ok := chs[channel]; ok {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%d", ErrUnknownChannel, cameraName, channel)
}

// Channels returns all configured channels in config order.
func (s *Service) Channels() []*Channel {
	return s.channels
}

// ChannelInfo decorates a configured channel with live device state.
type ChannelInfo struct {
	Camera     string `json:"camera"`
	Channel    int    `json:"channel"`
	Name       string `json:"name,omitempty"`
	Online     bool   `json:"online"`
	Recordings int    `json:"recordings"`
}

// Describe queries each camera for channel names and online state. Device
// errors degrade to offline entries instead of failing the listing.
func (s *Service) Describe(ctx context.Context) []ChannelInfo {
	type key struct {
		camera  string
		channel int
	}
	live := map[key]reolink.ChannelStatus{}
	for _, cam := range s.cameras {
		statuses, err := cam.dev.ChannelStatuses(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str(log.FieldCamera, cam.name).Msg("channel status query failed")
			continue
		}
		for _, st := range statuses {
			live[key{cam.name, st.Channel}] = st
		}
	}

	out := make([]ChannelInfo, 0, len(s.channels))
	for _, ch := range s.channels {
		info := ChannelInfo{
			Camera:     ch.camera,
			Channel:    ch.channel,
			Recordings: ch.cache.Len(),
		}
		if st, ok := live[key{ch.camera, ch.channel}]; ok {
			info.Name = st.Name
			info.Online = bool(st.Online)
		}
		out = append(out, info)
	}
	return out
}

// Load seeds channel caches from persisted snapshots.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	for _, ch := range s.channels {
		snaps, err := s.store.LoadMonths(ctx, ch.camera, ch.channel)
		if err != nil {
			return fmt.Errorf("load %s/%d: %w", ch.camera, ch.channel, err)
		}
		var first, last time.Time
		for _, snap := range snaps {
			ch.cache.LoadMonth(snap)
			for _, rec := range snap.Recordings {
				if first.IsZero() || rec.Start.Before(first) {
					first = rec.Start
				}
				if rec.End.After(last) {
					last = rec.End
				}
			}
		}
		// Persisted months are complete between the first and last
		// stored recording, so lookups in that span stay local.
		if !first.IsZero() {
			ch.cache.ExtendCovered(first, last)
		}
		if len(snaps) > 0 {
			ch.log.Info().Int("months", len(snaps)).Int("recordings", ch.cache.Len()).Msg("cache restored")
		}
	}
	return nil
}

// Refresh refreshes every channel concurrently and persists the results.
// One failing channel does not stop the others.
func (s *Service) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ch := range s.channels {
		g.Go(func() error {
			if err := ch.Refresh(ctx); err != nil {
				ch.log.Error().Err(err).Msg("refresh failed")
				return err
			}
			return s.persist(ctx, ch)
		})
	}
	return g.Wait()
}

func (s *Service) persist(ctx context.Context, ch *Channel) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveMonths(ctx, ch.camera, ch.channel, ch.cache.Snapshot()); err != nil {
		return fmt.Errorf("persist %s/%d: %w", ch.camera, ch.channel, err)
	}
	return nil
}

// Run performs an initial refresh and keeps refreshing on the configured
// interval until ctx is canceled. onReady is called once, after the first
// refresh that completes without error, so probes flip to ready only with a
// warm cache.
func (s *Service) Run(ctx context.Context, onReady func()) error {
	notify := func() {
		if onReady != nil {
			onReady()
			onReady = nil
		}
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial refresh incomplete")
	} else {
		notify()
	}
	if s.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.log.Warn().Err(err).Msg("refresh incomplete")
			} else {
				notify()
			}
		}
	}
}
