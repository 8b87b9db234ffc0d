// Package switchboard implements the stateful coordination engine: the
// event loop, message classification and routing, gossip orchestration
// under a pluggable replication policy, and the periodic retry tick. It is
// the one package every other internal package exists to serve.
package switchboard

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arkeep-io/switchboard/internal/aspect"
	"github.com/arkeep-io/switchboard/internal/cryptosys"
	"github.com/arkeep-io/switchboard/internal/connstate"
	"github.com/arkeep-io/switchboard/internal/messagelog"
	"github.com/arkeep-io/switchboard/internal/metrics"
	"github.com/arkeep-io/switchboard/internal/sharding"
	"github.com/arkeep-io/switchboard/internal/space"
	"github.com/arkeep-io/switchboard/internal/wire"
	"github.com/arkeep-io/switchboard/internal/wsadapter"
)

// Sender is the subset of wsadapter.Adapter the switchboard needs: a place
// to push commands and a stream of inbound events. Declared locally so
// tests can drive the switchboard against a fake adapter without opening
// real sockets.
type Sender interface {
	Send(cmd wsadapter.Command)
	Events() <-chan wsadapter.Event
}

// Config bundles everything Switchboard needs at construction. Only
// Crypto and Adapter are required; the rest have sane defaults.
type Config struct {
	Crypto  cryptosys.CryptoSystem
	Adapter Sender
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	MsgLog  *messagelog.Log

	DHT DHTConfig

	// LimboQueueCap bounds how many messages a connection may accumulate
	// before joining a space (default 64).
	LimboQueueCap int

	// DrainCap bounds how many inbound events are processed per loop
	// iteration before yielding back to the select (default 100).
	DrainCap int

	// ResyncInterval is the retry tick period (default 10s).
	ResyncInterval time.Duration

	// MessageLogCapacity bounds in-memory message log retention.
	MessageLogCapacity int

	// Rand drives every randomized choice (fetch candidate shuffling,
	// QueryEntry target selection). Defaults to a time-seeded source;
	// tests inject a seeded one for reproducibility.
	Rand *rand.Rand
}

// Switchboard is the single-threaded coordination engine. All exported
// methods that mutate state (Run's internal handlers) are only ever called
// from the goroutine running Run; SetDHTAlgorithm and the read-only
// accessors used by internal/adminapi are the sole exceptions and are
// synchronised accordingly.
type Switchboard struct {
	logger  *zap.Logger
	crypto  cryptosys.CryptoSystem
	adapter Sender
	metrics *metrics.Metrics
	msgLog  *messagelog.Log
	rnd     *rand.Rand

	dhtMu sync.RWMutex
	dht   DHTConfig

	limboQueueCap int
	drainCap      int

	spaces map[wire.SpaceHash]*space.Space
	conns  map[wire.Uri]*connstate.Conn

	tickCount uint64

	scheduler    gocron.Scheduler
	resyncSignal chan struct{}
}

// New builds a Switchboard from cfg, applying defaults for any zero-valued
// optional field.
func New(cfg Config) (*Switchboard, error) {
	if cfg.Crypto == nil {
		return nil, fmt.Errorf("switchboard: Config.Crypto is required")
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("switchboard: Config.Adapter is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	msgLog := cfg.MsgLog
	if msgLog == nil {
		msgLog = messagelog.New(logger, cfg.MessageLogCapacity)
	}
	limboQueueCap := cfg.LimboQueueCap
	if limboQueueCap <= 0 {
		limboQueueCap = 64
	}
	drainCap := cfg.DrainCap
	if drainCap <= 0 {
		drainCap = 100
	}
	resyncInterval := cfg.ResyncInterval
	if resyncInterval <= 0 {
		resyncInterval = 10 * time.Second
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("switchboard: create scheduler: %w", err)
	}

	sb := &Switchboard{
		logger:        logger.Named("switchboard"),
		crypto:        cfg.Crypto,
		adapter:       cfg.Adapter,
		metrics:       m,
		msgLog:        msgLog,
		rnd:           rnd,
		dht:           cfg.DHT,
		limboQueueCap: limboQueueCap,
		drainCap:      drainCap,
		spaces:        make(map[wire.SpaceHash]*space.Space),
		conns:         make(map[wire.Uri]*connstate.Conn),
		scheduler:     sched,
		resyncSignal:  make(chan struct{}, 1),
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(resyncInterval),
		gocron.NewTask(sb.signalResync),
	); err != nil {
		return nil, fmt.Errorf("switchboard: schedule resync job: %w", err)
	}

	return sb, nil
}

// signalResync is invoked by the gocron scheduler on its own goroutine. It
// never touches switchboard state directly — it only raises a signal that
// the single Run loop observes, so every actual mutation still happens on
// one goroutine.
func (sb *Switchboard) signalResync() {
	select {
	case sb.resyncSignal <- struct{}{}:
	default:
		// A resync is already pending; coalescing is fine, the retry tick
		// re-scans all spaces regardless of how many signals fired.
	}
}

// SetDHTAlgorithm changes the replication policy in effect. The policy is
// mutable post-construction so an operator can flip it without restarting.
func (sb *Switchboard) SetDHTAlgorithm(dht DHTConfig) {
	sb.dhtMu.Lock()
	sb.dht = dht
	sb.dhtMu.Unlock()
}

// DHTAlgorithm returns the currently active replication policy.
func (sb *Switchboard) DHTAlgorithm() DHTConfig {
	sb.dhtMu.RLock()
	defer sb.dhtMu.RUnlock()
	return sb.dht
}

// SpaceCount and ConnectionCount are read by internal/adminapi for status
// reporting; they take no lock since Run is the only writer, and the HTTP
// handlers call them directly from their own goroutines.
func (sb *Switchboard) SpaceCount() int      { return len(sb.spaces) }
func (sb *Switchboard) ConnectionCount() int { return len(sb.conns) }

// Run drives the event loop until ctx is cancelled. It must be called
// exactly once, and only from the goroutine that will own all switchboard
// state mutation.
func (sb *Switchboard) Run(ctx context.Context) error {
	sb.scheduler.Start()
	defer func() {
		if err := sb.scheduler.Shutdown(); err != nil {
			sb.logger.Warn("switchboard: scheduler shutdown error", zap.Error(err))
		}
	}()

	events := sb.adapter.Events()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-events:
			sb.tickCount++
			sb.handleEvent(ev)
			sb.drainRemaining(events)

		case <-sb.resyncSignal:
			sb.runRetryTick()
		}
	}
}

// drainRemaining processes up to drainCap-1 additional already-queued
// events without blocking, completing the per-tick drain.
func (sb *Switchboard) drainRemaining(events <-chan wsadapter.Event) {
	for i := 1; i < sb.drainCap; i++ {
		select {
		case ev := <-events:
			sb.handleEvent(ev)
		default:
			return
		}
	}
}

func (sb *Switchboard) handleEvent(ev wsadapter.Event) {
	switch e := ev.(type) {
	case wsadapter.ConnectionOpened:
		sb.conns[wire.Uri(e.ID)] = connstate.New(sb.limboQueueCap)
		sb.metrics.ConnectionsGauge.Set(float64(len(sb.conns)))

	case wsadapter.ConnectionClosed:
		sb.disconnect(wire.Uri(e.ID))

	case wsadapter.MessageReceived:
		if e.IsText {
			sb.logger.Warn("switchboard: protocol violation, text frame on a binary-only wire",
				zap.String("uri", string(e.ID)))
			sb.metrics.RecordDropped("text_frame")
			sb.adapter.Send(wsadapter.CloseConnection{ID: e.ID})
			sb.disconnect(wire.Uri(e.ID))
			return
		}
		sb.handleMessageReceived(wire.Uri(e.ID), e.Raw)

	case wsadapter.ConnectionError:
		sb.logger.Warn("switchboard: transport error", zap.String("uri", string(e.ID)), zap.Error(e.Err))
		sb.disconnect(wire.Uri(e.ID))
	}
}

// handleMessageReceived implements the frame-level contract: decode the
// envelope, verify the signature, then dispatch by phase.
func (sb *Switchboard) handleMessageReceived(uri wire.Uri, raw []byte) {
	signed, err := wire.DecodeSignedWireMessage(raw)
	if err != nil {
		sb.metrics.RecordDropped("envelope_decode_error")
		sb.logger.Warn("switchboard: failed to decode frame", zap.String("uri", string(uri)), zap.Error(err))
		return
	}

	if !signed.Verify(sb.crypto) {
		sb.metrics.RecordDropped("verify_failed")
		sb.logger.Warn("switchboard: signature verification failed", zap.String("uri", string(uri)), zap.Error(ErrVerifyFailed))
		return
	}

	msg, err := signed.DecodePayload()
	if err != nil {
		sb.metrics.RecordDropped("payload_decode_error")
		sb.logger.Warn("switchboard: failed to decode payload", zap.String("uri", string(uri)), zap.Error(err))
		return
	}

	conn, ok := sb.conns[uri]
	if !ok {
		return
	}

	if conn.Phase() == connstate.Joined {
		sb.routeJoined(uri, conn, signed.Provenance, msg)
		return
	}
	sb.routeLimbo(uri, conn, signed.Provenance, msg)
}

// routeLimbo implements the Limbo row of the transition table.
func (sb *Switchboard) routeLimbo(uri wire.Uri, conn *connstate.Conn, provenance wire.AgentID, msg wire.WireMessage) {
	if js, ok := msg.(wire.JoinSpace); ok {
		if provenance != js.AgentID {
			sb.reportError(uri, wire.ErrKindSignerMismatch, ErrSignerMismatch.Error())
			return
		}
		sb.handleJoinSpace(uri, conn, js)
		return
	}

	if err := conn.Enqueue(msg); err != nil {
		sb.logger.Warn("switchboard: limbo queue full, dropping connection", zap.String("uri", string(uri)))
		sb.metrics.RecordDropped("limbo_queue_full")
		sb.adapter.Send(wsadapter.CloseConnection{ID: wsadapter.ConnID(uri)})
		sb.disconnect(uri)
		return
	}
	sb.reportError(uri, wire.ErrKindMessageWhileInLimbo, ErrMessageWhileInLimbo.Error())
}

func (sb *Switchboard) handleJoinSpace(uri wire.Uri, conn *connstate.Conn, js wire.JoinSpace) {
	sp := sb.spaceFor(js.SpaceAddress)
	if err := sp.JoinAgent(js.AgentID, uri); err != nil {
		sb.logger.Warn("switchboard: join rejected", zap.String("uri", string(uri)), zap.Error(err))
		sb.reportError(uri, wire.ErrKindOther, err.Error())
		return
	}

	backlog := conn.Join(js.SpaceAddress, js.AgentID)

	sb.sendTo(js.AgentID, uri, wire.HandleGetAuthoringEntryList{GetListData: wire.GetListData{
		RequestID:       uuid.NewString(),
		SpaceAddress:    js.SpaceAddress,
		ProviderAgentID: js.AgentID,
	}})
	sb.sendTo(js.AgentID, uri, wire.HandleGetGossipingEntryList{GetListData: wire.GetListData{
		RequestID:       uuid.NewString(),
		SpaceAddress:    js.SpaceAddress,
		ProviderAgentID: js.AgentID,
	}})

	// Every message queued in Limbo arrived over the same connection, so it
	// carries the same signer as the JoinSpace that unblocked it. Replayed
	// in original order before any new message is processed.
	for _, queued := range backlog {
		sb.routeJoined(uri, conn, js.AgentID, queued)
	}
}

// routeJoined implements message classification for a Joined connection.
func (sb *Switchboard) routeJoined(uri wire.Uri, conn *connstate.Conn, provenance wire.AgentID, msg wire.WireMessage) {
	boundSpace, boundAgent, _ := conn.SpaceAgent()

	if provenance != boundAgent {
		sb.reportError(uri, wire.ErrKindSignerMismatch, ErrSignerMismatch.Error())
		return
	}

	switch m := msg.(type) {
	case wire.LeaveSpace:
		if m.SpaceAddress != boundSpace || m.AgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.disconnect(uri)
		sb.adapter.Send(wsadapter.CloseConnection{ID: wsadapter.ConnID(uri)})

	case wire.SendDirectMessage:
		if m.SpaceAddress != boundSpace || m.FromAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleSendDirectMessage(boundAgent, uri, boundSpace, m)

	case wire.HandleSendDirectMessageResult:
		if m.SpaceAddress != boundSpace || m.FromAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleSendDirectMessageResult(boundAgent, uri, boundSpace, m)

	case wire.PublishEntry:
		if m.SpaceAddress != boundSpace || m.ProviderAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleNewEntryData(boundSpace, m.ProviderAgentID, m.Entry)

	case wire.HandleGetAuthoringEntryListResult:
		if m.SpaceAddress != boundSpace || m.ProviderAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleAuthoringListResult(boundAgent, uri, boundSpace, m)

	case wire.HandleGetGossipingEntryListResult:
		if m.SpaceAddress != boundSpace || m.ProviderAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleGossipingListResult(boundAgent, uri, boundSpace, m)

	case wire.HandleFetchEntryResult:
		if m.SpaceAddress != boundSpace || m.ProviderAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleFetchEntryResult(boundAgent, boundSpace, m)

	case wire.QueryEntry:
		if m.SpaceAddress != boundSpace || m.RequesterAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleQueryEntry(boundAgent, uri, boundSpace, m)

	case wire.HandleQueryEntryResult:
		if m.SpaceAddress != boundSpace || m.ResponderAgentID != boundAgent {
			sb.reportError(uri, wire.ErrKindSpaceMismatch, ErrSpaceMismatch.Error())
			return
		}
		sb.handleQueryEntryResult(boundAgent, boundSpace, m)

	case wire.Ping:
		sb.sendTo(boundAgent, uri, wire.Pong{})

	case wire.Status:
		sb.sendTo(boundAgent, uri, sb.statusResponse())

	case wire.JoinSpace:
		// Already joined; re-joining the same or a different space while
		// bound is not a supported transition. Treated as an error report
		// rather than silently accepted.
		sb.reportError(uri, wire.ErrKindOther, "already joined a space")

	default:
		// Server→client variants arriving from a client are a protocol
		// violation.
		sb.logger.Warn("switchboard: protocol violation, unsolicited server-originated message from client",
			zap.String("uri", string(uri)), zap.String("type", string(msg.Kind())))
		sb.disconnect(uri)
		sb.adapter.Send(wsadapter.CloseConnection{ID: wsadapter.ConnID(uri)})
	}
}

func (sb *Switchboard) handleSendDirectMessage(from wire.AgentID, uri wire.Uri, space wire.SpaceHash, m wire.SendDirectMessage) {
	sp := sb.spaces[space]
	toURI, ok := sp.AgentIDToURI(m.ToAgentID)
	if !ok {
		sb.reportError(uri, wire.ErrKindUnvalidatedProxy, ErrUnvalidatedProxyAgent.Error())
		return
	}
	sb.sendTo(from, toURI, wire.HandleSendDirectMessage{DirectMessageData: m.DirectMessageData})
}

func (sb *Switchboard) handleSendDirectMessageResult(from wire.AgentID, uri wire.Uri, space wire.SpaceHash, m wire.HandleSendDirectMessageResult) {
	sp := sb.spaces[space]
	toURI, ok := sp.AgentIDToURI(m.ToAgentID)
	if !ok {
		sb.reportError(uri, wire.ErrKindUnvalidatedProxy, ErrUnvalidatedProxyAgent.Error())
		return
	}
	sb.sendTo(from, toURI, wire.SendDirectMessageResult{DirectMessageData: m.DirectMessageData})
}

// handleNewEntryData implements new-entry ingest: compute the
// replica set under the active policy, record every aspect, and broadcast
// a store request to each replica independently.
func (sb *Switchboard) handleNewEntryData(spaceHash wire.SpaceHash, provider wire.AgentID, entry wire.EntryData) {
	sp := sb.spaces[spaceHash]
	if sp == nil {
		return
	}

	replicas := sb.replicaSet(sp, spaceHash, provider, entry.EntryAddress)

	for _, a := range entry.AspectList {
		sp.AddAspect(entry.EntryAddress, a.AspectAddress)
	}

	for _, target := range replicas {
		toURI, ok := sp.AgentIDToURI(target)
		if !ok {
			continue
		}
		for _, a := range entry.AspectList {
			sb.sendTo(provider, toURI, wire.HandleStoreEntryAspect{StoreEntryAspectData: wire.StoreEntryAspectData{
				SpaceAddress:    spaceHash,
				ProviderAgentID: provider,
				EntryAddress:    entry.EntryAddress,
				EntryAspect:     a,
			}})
		}
	}
}

// replicaSet composes the two "who gets a copy" lookups, keyed by the
// active DHT algorithm.
func (sb *Switchboard) replicaSet(sp *space.Space, spaceHash wire.SpaceHash, provider wire.AgentID, entry wire.EntryHash) []wire.AgentID {
	dht := sb.DHTAlgorithm()
	if dht.Algorithm == FullSync {
		return sp.AgentsExcept(provider)
	}

	loc := sharding.EntryLocation(sb.crypto, entry)
	holders := sp.AgentsSupposedToHoldEntry(sb.crypto, loc, dht.RedundantCount)
	out := holders[:0:0]
	for _, a := range holders {
		if a != provider {
			out = append(out, a)
		}
	}
	return out
}

func (sb *Switchboard) handleAuthoringListResult(agent wire.AgentID, uri wire.Uri, spaceHash wire.SpaceHash, m wire.HandleGetAuthoringEntryListResult) {
	sp := sb.spaces[spaceHash]
	if sp == nil {
		return
	}
	reported := aspect.New(m.AddressMap)
	unseen := reported.Diff(sp.AllAspects())

	for _, entry := range unseen.EntryAddresses() {
		aspects, _ := unseen.PerEntry(entry)
		sb.sendTo(agent, uri, wire.HandleFetchEntry{FetchEntryData: wire.FetchEntryData{
			SpaceAddress:      spaceHash,
			ProviderAgentID:   agent,
			EntryAddress:      entry,
			AspectAddressList: aspects,
		}})
	}
}

func (sb *Switchboard) handleGossipingListResult(agent wire.AgentID, uri wire.Uri, spaceHash wire.SpaceHash, m wire.HandleGetGossipingEntryListResult) {
	sp := sb.spaces[spaceHash]
	if sp == nil {
		return
	}
	all := sp.AllAspects()
	reported := aspect.New(m.AddressMap)

	unseenAtServer := reported.Diff(all)
	for _, entry := range unseenAtServer.EntryAddresses() {
		aspects, _ := unseenAtServer.PerEntry(entry)
		sb.sendTo(agent, uri, wire.HandleFetchEntry{FetchEntryData: wire.FetchEntryData{
			SpaceAddress:      spaceHash,
			ProviderAgentID:   agent,
			EntryAddress:      entry,
			AspectAddressList: aspects,
		}})
	}

	dht := sb.DHTAlgorithm()
	var expected aspect.List
	if dht.Algorithm == FullSync {
		expected = all
	} else {
		expected = sp.AspectsInShardForAgent(sb.crypto, agent, dht.RedundantCount)
	}

	missing := expected.Diff(reported)
	for _, entry := range missing.EntryAddresses() {
		aspects, _ := missing.PerEntry(entry)
		for _, a := range aspects {
			sp.AddMissingAspect(agent, entry, a)
		}
	}
	sb.metrics.RecordMissingAspects(string(spaceHash), len(sp.AgentsWithMissingAspects()))

	sb.initiateFetches(sp, spaceHash, agent, missing)
}

// initiateFetches, for each entry still missing at agent, picks a
// uniformly random qualifying peer and asks it to fetch the content on
// agent's behalf.
func (sb *Switchboard) initiateFetches(sp *space.Space, spaceHash wire.SpaceHash, forAgent wire.AgentID, missing aspect.List) {
	for _, entry := range missing.EntryAddresses() {
		needed, _ := missing.PerEntry(entry)

		pool := sp.AgentsExcept(forAgent)
		sb.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

		var chosen wire.AgentID
		found := false
		for _, candidate := range pool {
			if sp.AgentIsMissingAllAspects(candidate, entry, needed) {
				continue
			}
			chosen = candidate
			found = true
			break
		}
		if !found {
			sb.logger.Info("switchboard: no fetch candidate qualified, deferring to next retry tick",
				zap.String("space", string(spaceHash)), zap.String("entry", string(entry)))
			sb.metrics.RecordDropped("no_fetch_candidate")
			continue
		}

		toURI, ok := sp.AgentIDToURI(chosen)
		if !ok {
			continue
		}
		sb.metrics.FetchesSent.Inc()
		sb.sendTo(chosen, toURI, wire.HandleFetchEntry{FetchEntryData: wire.FetchEntryData{
			RequestID:         string(forAgent),
			SpaceAddress:      spaceHash,
			ProviderAgentID:   chosen,
			EntryAddress:      entry,
			AspectAddressList: needed,
		}})
	}
}

// handleFetchEntryResult implements the two FetchEntryResult flows: an
// empty RequestID is authored content (treated as ingest); a non-empty
// RequestID names the destination agent awaiting gossip.
func (sb *Switchboard) handleFetchEntryResult(from wire.AgentID, spaceHash wire.SpaceHash, m wire.HandleFetchEntryResult) {
	if m.RequestID == "" {
		sb.handleNewEntryData(spaceHash, m.ProviderAgentID, m.Entry)
		return
	}

	sp := sb.spaces[spaceHash]
	if sp == nil {
		return
	}
	forAgent := wire.AgentID(m.RequestID)
	toURI, ok := sp.AgentIDToURI(forAgent)
	if !ok {
		sb.logger.Warn("switchboard: gossip fetch destination agent no longer present",
			zap.String("space", string(spaceHash)), zap.String("agent", string(forAgent)))
		return
	}

	for _, a := range m.Entry.AspectList {
		sp.RemoveMissingAspect(forAgent, m.Entry.EntryAddress, a.AspectAddress)
		sb.sendTo(from, toURI, wire.HandleStoreEntryAspect{StoreEntryAspectData: wire.StoreEntryAspectData{
			SpaceAddress:    spaceHash,
			ProviderAgentID: m.ProviderAgentID,
			EntryAddress:    m.Entry.EntryAddress,
			EntryAspect:     a,
		}})
	}
}

// handleQueryEntry implements QueryEntry routing, valid only under
// naive-sharding.
func (sb *Switchboard) handleQueryEntry(requester wire.AgentID, uri wire.Uri, spaceHash wire.SpaceHash, m wire.QueryEntry) {
	dht := sb.DHTAlgorithm()
	if dht.Algorithm != NaiveSharding {
		sb.reportError(uri, wire.ErrKindOther, "QueryEntry is only valid under naive-sharding")
		return
	}

	sp := sb.spaces[spaceHash]
	if sp == nil {
		return
	}

	loc := sharding.EntryLocation(sb.crypto, m.EntryAddress)
	holders := sp.AgentsSupposedToHoldEntry(sb.crypto, loc, dht.RedundantCount)

	var pool []wire.AgentID
	for _, h := range holders {
		if !sp.AgentIsMissingSomeAspectForEntry(h, m.EntryAddress) {
			pool = append(pool, h)
		}
	}

	target := requester
	if len(pool) > 0 {
		target = pool[sb.rnd.Intn(len(pool))]
	}

	toURI, ok := sp.AgentIDToURI(target)
	if !ok {
		return
	}
	sb.sendTo(requester, toURI, wire.HandleQueryEntry{QueryEntryData: m.QueryEntryData})
}

func (sb *Switchboard) handleQueryEntryResult(from wire.AgentID, spaceHash wire.SpaceHash, m wire.HandleQueryEntryResult) {
	sp := sb.spaces[spaceHash]
	if sp == nil {
		return
	}
	toURI, ok := sp.AgentIDToURI(m.RequesterAgentID)
	if !ok {
		return
	}
	sb.sendTo(from, toURI, wire.QueryEntryResult{QueryEntryResultData: m.QueryEntryResultData})
}

// runRetryTick resends HandleGetGossipingEntryList to every agent still
// carrying outstanding missing aspects.
func (sb *Switchboard) runRetryTick() {
	sb.metrics.TickTotal.Inc()
	for spaceHash, sp := range sb.spaces {
		for _, agent := range sp.AgentsWithMissingAspects() {
			toURI, ok := sp.AgentIDToURI(agent)
			if !ok {
				continue
			}
			sb.sendTo(agent, toURI, wire.HandleGetGossipingEntryList{GetListData: wire.GetListData{
				RequestID:       uuid.NewString(),
				SpaceAddress:    spaceHash,
				ProviderAgentID: agent,
			}})
		}
	}
}

// disconnect removes uri's connection and, if it was joined, removes its
// agent from the space — deleting the space entirely if that was the last
// agent.
func (sb *Switchboard) disconnect(uri wire.Uri) {
	conn, ok := sb.conns[uri]
	if !ok {
		return
	}
	delete(sb.conns, uri)
	sb.metrics.ConnectionsGauge.Set(float64(len(sb.conns)))

	spaceHash, agent, joined := conn.SpaceAgent()
	if !joined {
		return
	}
	sp, ok := sb.spaces[spaceHash]
	if !ok {
		return
	}
	if remaining := sp.RemoveAgent(agent); remaining == 0 {
		delete(sb.spaces, spaceHash)
		sb.metrics.SpacesGauge.Set(float64(len(sb.spaces)))
	}
}

func (sb *Switchboard) spaceFor(spaceHash wire.SpaceHash) *space.Space {
	sp, ok := sb.spaces[spaceHash]
	if !ok {
		sp = space.New()
		sb.spaces[spaceHash] = sp
		sb.metrics.SpacesGauge.Set(float64(len(sb.spaces)))
	}
	return sp
}

func (sb *Switchboard) statusResponse() wire.StatusResponse {
	dht := sb.DHTAlgorithm()
	return wire.StatusResponse{StatusData: wire.StatusData{
		SpacesCount:      len(sb.spaces),
		ConnectionsCount: len(sb.conns),
		RedundantCount:   dht.RedundantCount,
		WireVersion:      wire.WireVersion,
	}}
}

// reportError sends an Err frame to uri describing kind/message. It is
// always non-fatal — the connection survives a reportError call.
func (sb *Switchboard) reportError(uri wire.Uri, kind wire.ErrKind, message string) {
	sb.metrics.RecordDropped(string(kind))
	sb.logger.Warn("switchboard: rejecting message", zap.String("uri", string(uri)), zap.String("kind", string(kind)), zap.String("message", message))
	sb.sendTo("", uri, wire.Err{ErrData: wire.ErrData{Kind: kind, Message: message}})
}

// sendTo encodes msg and hands it to the adapter for delivery to uri.
// Messages other than Ping/Pong are appended to the message log; sends to
// an unknown-open uri are dropped after a logged error.
func (sb *Switchboard) sendTo(signer wire.AgentID, uri wire.Uri, msg wire.WireMessage) {
	if _, ok := sb.conns[uri]; !ok {
		sb.logger.Error("switchboard: send to unknown uri dropped", zap.String("uri", string(uri)), zap.String("type", string(msg.Kind())))
		return
	}

	raw, err := wire.Encode(msg)
	if err != nil {
		sb.logger.Error("switchboard: failed to encode outbound message", zap.String("uri", string(uri)), zap.Error(err))
		return
	}

	switch msg.(type) {
	case wire.Ping, wire.Pong:
	default:
		sb.msgLog.Append(signer, uri, msg.Kind())
	}

	sb.metrics.RecordSent(string(msg.Kind()))
	sb.adapter.Send(wsadapter.SendMessage{ID: wsadapter.ConnID(uri), Raw: raw})
}
