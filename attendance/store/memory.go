// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================
// Conditional-write semantics mirror the SQL store: each mutating method
// re-checks its precondition under the lock and fails with ErrConflict when
// the state moved, so service-level CAS tests behave identically on both
// backends.

type Memory struct {
	mu sync.RWMutex

	records     map[attendance.RecordID]*attendance.AttendanceRecord
	byDay       map[dayKey]attendance.RecordID
	events      map[attendance.RecordID][]*attendance.TimerEvent
	eventOwner  map[attendance.EventID]attendance.RecordID
	logs        map[attendance.RecordID][]*attendance.OperationLog
	corrections map[attendance.CorrectionID]*attendance.TimeCorrection
}

type dayKey struct {
	Employee attendance.EmployeeID
	Day      attendance.Day
}

func NewMemory() *Memory {
	return &Memory{
		records:     make(map[attendance.RecordID]*attendance.AttendanceRecord),
		byDay:       make(map[dayKey]attendance.RecordID),
		events:      make(map[attendance.RecordID][]*attendance.TimerEvent),
		eventOwner:  make(map[attendance.EventID]attendance.RecordID),
		logs:        make(map[attendance.RecordID][]*attendance.OperationLog),
		corrections: make(map[attendance.CorrectionID]*attendance.TimeCorrection),
	}
}

// =============================================================================
// RECORDS
// =============================================================================

func (m *Memory) CreateRecord(_ context.Context, rec *attendance.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRecordLocked(rec)
}

func (m *Memory) createRecordLocked(rec *attendance.AttendanceRecord) error {
	k := dayKey{Employee: rec.EmployeeID, Day: rec.Day}
	if existing, ok := m.byDay[k]; ok {
		return &attendance.DuplicateRecordError{
			EmployeeID: rec.EmployeeID,
			Day:        rec.Day,
			ExistingID: existing,
		}
	}
	cp := *rec
	m.records[rec.ID] = &cp
	m.byDay[k] = rec.ID
	return nil
}

func (m *Memory) GetRecord(_ context.Context, id attendance.RecordID) (*attendance.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRecordLocked(id)
}

func (m *Memory) getRecordLocked(id attendance.RecordID) (*attendance.AttendanceRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) GetRecordByDay(_ context.Context, employee attendance.EmployeeID, day attendance.Day) (*attendance.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byDay[dayKey{Employee: employee, Day: day}]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	return m.getRecordLocked(id)
}

func (m *Memory) ListRecords(_ context.Context, employee attendance.EmployeeID) ([]attendance.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []attendance.AttendanceRecord
	for _, rec := range m.records {
		if rec.EmployeeID == employee {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (m *Memory) SetCheckedOut(_ context.Context, id attendance.RecordID, at int64, workMinutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCheckedOutLocked(id, at, workMinutes)
}

func (m *Memory) setCheckedOutLocked(id attendance.RecordID, at int64, workMinutes int) error {
	rec, ok := m.records[id]
	if !ok {
		return attendance.ErrRecordNotFound
	}
	if rec.CheckOutTime != nil {
		return attendance.ErrConflict
	}
	rec.CheckOutTime = &at
	rec.TotalWorkMinutes = workMinutes
	rec.Status = attendance.StatusCompleted
	return nil
}

func (m *Memory) ClearCheckout(_ context.Context, id attendance.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCheckoutLocked(id)
}

func (m *Memory) clearCheckoutLocked(id attendance.RecordID) error {
	rec, ok := m.records[id]
	if !ok {
		return attendance.ErrRecordNotFound
	}
	if rec.CheckOutTime == nil || rec.ApprovalStatus == attendance.ApprovalApproved {
		return attendance.ErrConflict
	}
	rec.CheckOutTime = nil
	rec.TotalWorkMinutes = 0
	rec.Status = attendance.StatusInProgress
	return nil
}

func (m *Memory) SetApproved(_ context.Context, id attendance.RecordID, by string, at int64, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setApprovedLocked(id, by, at, comment)
}

func (m *Memory) setApprovedLocked(id attendance.RecordID, by string, at int64, comment string) error {
	rec, ok := m.records[id]
	if !ok {
		return attendance.ErrRecordNotFound
	}
	if rec.ApprovalStatus != attendance.ApprovalPending || rec.Status == attendance.StatusInProgress {
		return attendance.ErrConflict
	}
	rec.ApprovalStatus = attendance.ApprovalApproved
	rec.ApprovedBy = by
	rec.ApprovedAt = &at
	rec.ApprovalComment = comment
	return nil
}

func (m *Memory) SetRejected(_ context.Context, id attendance.RecordID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setRejectedLocked(id, reason)
}

func (m *Memory) setRejectedLocked(id attendance.RecordID, reason string) error {
	rec, ok := m.records[id]
	if !ok {
		return attendance.ErrRecordNotFound
	}
	if rec.ApprovalStatus != attendance.ApprovalPending {
		return attendance.ErrConflict
	}
	rec.ApprovalStatus = attendance.ApprovalRejected
	rec.RejectionReason = reason
	return nil
}

func (m *Memory) ApplyCorrection(_ context.Context, id attendance.RecordID, field attendance.CorrectionField, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyCorrectionLocked(id, field, value)
}

func (m *Memory) applyCorrectionLocked(id attendance.RecordID, field attendance.CorrectionField, value string) error {
	rec, ok := m.records[id]
	if !ok {
		return attendance.ErrRecordNotFound
	}

	switch field {
	case attendance.FieldCheckInTime:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return attendance.ErrBadFieldValue
		}
		rec.CheckInTime = v
	case attendance.FieldCheckOutTime:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return attendance.ErrBadFieldValue
		}
		rec.CheckOutTime = &v
	case attendance.FieldTotalWorkMinutes:
		v, err := strconv.Atoi(value)
		if err != nil {
			return attendance.ErrBadFieldValue
		}
		rec.TotalWorkMinutes = v
	case attendance.FieldNotes:
		rec.Notes = value
	default:
		return attendance.ErrUnknownField
	}

	rec.Status = attendance.StatusCorrected
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, ev *attendance.TimerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEventLocked(ev)
}

func (m *Memory) appendEventLocked(ev *attendance.TimerEvent) error {
	if _, ok := m.records[ev.RecordID]; !ok {
		return attendance.ErrRecordNotFound
	}
	cp := *ev
	m.events[ev.RecordID] = append(m.events[ev.RecordID], &cp)
	m.eventOwner[ev.ID] = ev.RecordID
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id attendance.EventID) (*attendance.TimerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEventLocked(id)
}

func (m *Memory) getEventLocked(id attendance.EventID) (*attendance.TimerEvent, error) {
	ev := m.findEventLocked(id)
	if ev == nil {
		return nil, attendance.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *Memory) findEventLocked(id attendance.EventID) *attendance.TimerEvent {
	recID, ok := m.eventOwner[id]
	if !ok {
		return nil
	}
	for _, ev := range m.events[recID] {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}

func (m *Memory) EventsForRecord(_ context.Context, id attendance.RecordID) ([]attendance.TimerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsForRecordLocked(id)
}

func (m *Memory) eventsForRecordLocked(id attendance.RecordID) ([]attendance.TimerEvent, error) {
	evs := m.events[id]
	out := make([]attendance.TimerEvent, 0, len(evs))
	for _, ev := range evs {
		out = append(out, *ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (m *Memory) CloseOpenRests(_ context.Context, id attendance.RecordID, end int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeOpenRestsLocked(id, end)
}

func (m *Memory) closeOpenRestsLocked(id attendance.RecordID, end int64) (int, error) {
	var closed int
	for _, ev := range m.events[id] {
		if ev.Open() {
			e := end
			ev.EndTimestamp = &e
			closed++
		}
	}
	return closed, nil
}

func (m *Memory) SetEventMemo(_ context.Context, id attendance.EventID, memo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setEventMemoLocked(id, memo)
}

func (m *Memory) setEventMemoLocked(id attendance.EventID, memo string) error {
	ev := m.findEventLocked(id)
	if ev == nil {
		return attendance.ErrEventNotFound
	}
	if rec, ok := m.records[ev.RecordID]; ok && rec.ApprovalStatus == attendance.ApprovalApproved {
		return attendance.ErrConflict
	}
	ev.Memo = memo
	return nil
}

// =============================================================================
// CORRECTIONS
// =============================================================================

func (m *Memory) CreateCorrection(_ context.Context, c *attendance.TimeCorrection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCorrectionLocked(c)
}

func (m *Memory) createCorrectionLocked(c *attendance.TimeCorrection) error {
	if _, ok := m.records[c.RecordID]; !ok {
		return attendance.ErrRecordNotFound
	}
	cp := *c
	m.corrections[c.ID] = &cp
	return nil
}

func (m *Memory) GetCorrection(_ context.Context, id attendance.CorrectionID) (*attendance.TimeCorrection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCorrectionLocked(id)
}

func (m *Memory) getCorrectionLocked(id attendance.CorrectionID) (*attendance.TimeCorrection, error) {
	c, ok := m.corrections[id]
	if !ok {
		return nil, attendance.ErrCorrectionNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) PendingCorrections(_ context.Context) ([]attendance.TimeCorrection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []attendance.TimeCorrection
	for _, c := range m.corrections {
		if c.ApprovalStatus == attendance.ApprovalPending {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (m *Memory) SetCorrectionResolved(_ context.Context, id attendance.CorrectionID, status attendance.ApprovalStatus, by string, at int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCorrectionResolvedLocked(id, status, by, at, reason)
}

func (m *Memory) setCorrectionResolvedLocked(id attendance.CorrectionID, status attendance.ApprovalStatus, by string, at int64, reason string) error {
	c, ok := m.corrections[id]
	if !ok {
		return attendance.ErrCorrectionNotFound
	}
	if c.ApprovalStatus != attendance.ApprovalPending {
		return attendance.ErrConflict
	}
	c.ApprovalStatus = status
	c.ResolvedBy = by
	c.ResolvedAt = &at
	c.Reason = reason
	return nil
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func (m *Memory) AppendLog(_ context.Context, entry *attendance.OperationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLogLocked(entry)
}

func (m *Memory) appendLogLocked(entry *attendance.OperationLog) error {
	cp := *entry
	m.logs[entry.RecordID] = append(m.logs[entry.RecordID], &cp)
	return nil
}

func (m *Memory) LogsForRecord(_ context.Context, id attendance.RecordID) ([]attendance.OperationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logsForRecordLocked(id)
}

func (m *Memory) logsForRecordLocked(id attendance.RecordID) ([]attendance.OperationLog, error) {
	entries := m.logs[id]
	out := make([]attendance.OperationLog, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	// Newest first; appends within one instant keep insertion order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

func (m *Memory) CountLogs(_ context.Context, id attendance.RecordID, action attendance.Action) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLogsLocked(id, action)
}

func (m *Memory) countLogsLocked(id attendance.RecordID, action attendance.Action) (int, error) {
	var n int
	for _, e := range m.logs[id] {
		if e.Action == action {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot plus rollback on error
// =============================================================================

// WithTx executes fn while holding the write lock. On error the snapshot
// taken up front is restored, so partial writes never become visible.
func (m *Memory) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	records     map[attendance.RecordID]*attendance.AttendanceRecord
	byDay       map[dayKey]attendance.RecordID
	events      map[attendance.RecordID][]*attendance.TimerEvent
	eventOwner  map[attendance.EventID]attendance.RecordID
	logs        map[attendance.RecordID][]*attendance.OperationLog
	corrections map[attendance.CorrectionID]*attendance.TimeCorrection
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		records:     make(map[attendance.RecordID]*attendance.AttendanceRecord, len(m.records)),
		byDay:       make(map[dayKey]attendance.RecordID, len(m.byDay)),
		events:      make(map[attendance.RecordID][]*attendance.TimerEvent, len(m.events)),
		eventOwner:  make(map[attendance.EventID]attendance.RecordID, len(m.eventOwner)),
		logs:        make(map[attendance.RecordID][]*attendance.OperationLog, len(m.logs)),
		corrections: make(map[attendance.CorrectionID]*attendance.TimeCorrection, len(m.corrections)),
	}
	for k, v := range m.records {
		cp := *v
		s.records[k] = &cp
	}
	for k, v := range m.byDay {
		s.byDay[k] = v
	}
	for k, v := range m.events {
		evs := make([]*attendance.TimerEvent, len(v))
		for i, ev := range v {
			cp := *ev
			evs[i] = &cp
		}
		s.events[k] = evs
	}
	for k, v := range m.eventOwner {
		s.eventOwner[k] = v
	}
	for k, v := range m.logs {
		entries := make([]*attendance.OperationLog, len(v))
		for i, e := range v {
			cp := *e
			entries[i] = &cp
		}
		s.logs[k] = entries
	}
	for k, v := range m.corrections {
		cp := *v
		s.corrections[k] = &cp
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.records = s.records
	m.byDay = s.byDay
	m.events = s.events
	m.eventOwner = s.eventOwner
	m.logs = s.logs
	m.corrections = s.corrections
}

// txView routes calls to the locked helpers; the parent already holds the
// write lock for the duration of WithTx.
type txView struct {
	parent *Memory
}

func (v *txView) CreateRecord(_ context.Context, rec *attendance.AttendanceRecord) error {
	return v.parent.createRecordLocked(rec)
}

func (v *txView) GetRecord(_ context.Context, id attendance.RecordID) (*attendance.AttendanceRecord, error) {
	return v.parent.getRecordLocked(id)
}

func (v *txView) GetRecordByDay(_ context.Context, employee attendance.EmployeeID, day attendance.Day) (*attendance.AttendanceRecord, error) {
	id, ok := v.parent.byDay[dayKey{Employee: employee, Day: day}]
	if !ok {
		return nil, attendance.ErrRecordNotFound
	}
	return v.parent.getRecordLocked(id)
}

func (v *txView) ListRecords(_ context.Context, employee attendance.EmployeeID) ([]attendance.AttendanceRecord, error) {
	var out []attendance.AttendanceRecord
	for _, rec := range v.parent.records {
		if rec.EmployeeID == employee {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (v *txView) SetCheckedOut(_ context.Context, id attendance.RecordID, at int64, workMinutes int) error {
	return v.parent.setCheckedOutLocked(id, at, workMinutes)
}

func (v *txView) ClearCheckout(_ context.Context, id attendance.RecordID) error {
	return v.parent.clearCheckoutLocked(id)
}

func (v *txView) SetApproved(_ context.Context, id attendance.RecordID, by string, at int64, comment string) error {
	return v.parent.setApprovedLocked(id, by, at, comment)
}

func (v *txView) SetRejected(_ context.Context, id attendance.RecordID, reason string) error {
	return v.parent.setRejectedLocked(id, reason)
}

func (v *txView) ApplyCorrection(_ context.Context, id attendance.RecordID, field attendance.CorrectionField, value string) error {
	return v.parent.applyCorrectionLocked(id, field, value)
}

func (v *txView) AppendEvent(_ context.Context, ev *attendance.TimerEvent) error {
	return v.parent.appendEventLocked(ev)
}

func (v *txView) GetEvent(_ context.Context, id attendance.EventID) (*attendance.TimerEvent, error) {
	return v.parent.getEventLocked(id)
}

func (v *txView) EventsForRecord(_ context.Context, id attendance.RecordID) ([]attendance.TimerEvent, error) {
	return v.parent.eventsForRecordLocked(id)
}

func (v *txView) CloseOpenRests(_ context.Context, id attendance.RecordID, end int64) (int, error) {
	return v.parent.closeOpenRestsLocked(id, end)
}

func (v *txView) SetEventMemo(_ context.Context, id attendance.EventID, memo string) error {
	return v.parent.setEventMemoLocked(id, memo)
}

func (v *txView) CreateCorrection(_ context.Context, c *attendance.TimeCorrection) error {
	return v.parent.createCorrectionLocked(c)
}

func (v *txView) GetCorrection(_ context.Context, id attendance.CorrectionID) (*attendance.TimeCorrection, error) {
	return v.parent.getCorrectionLocked(id)
}

func (v *txView) PendingCorrections(_ context.Context) ([]attendance.TimeCorrection, error) {
	var out []attendance.TimeCorrection
	for _, c := range v.parent.corrections {
		if c.ApprovalStatus == attendance.ApprovalPending {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (v *txView) SetCorrectionResolved(_ context.Context, id attendance.CorrectionID, status attendance.ApprovalStatus, by string, at int64, reason string) error {
	return v.parent.setCorrectionResolvedLocked(id, status, by, at, reason)
}

func (v *txView) AppendLog(_ context.Context, entry *attendance.OperationLog) error {
	return v.parent.appendLogLocked(entry)
}

func (v *txView) LogsForRecord(_ context.Context, id attendance.RecordID) ([]attendance.OperationLog, error) {
	return v.parent.logsForRecordLocked(id)
}

func (v *txView) CountLogs(_ context.Context, id attendance.RecordID, action attendance.Action) (int, error) {
	return v.parent.countLogsLocked(id, action)
}
