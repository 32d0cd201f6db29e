// Package memstore is an in-memory store.Store for tests. InTx serializes
// transactions and restores a snapshot when fn fails.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store"
)

type memberKey struct {
	space uuid.UUID
	user  uuid.UUID
}

type state struct {
	users         map[uuid.UUID]models.User
	spaces        map[uuid.UUID]models.Space
	memberships   map[memberKey]models.Membership
	past          map[memberKey]models.PastParticipant
	invitations   map[uuid.UUID]models.Invitation
	messages      map[uuid.UUID]models.Message
	readStatuses  map[memberKey][]models.ReadStatus // keyed by (space, user)
	notifications []models.Notification
	emailLogs     []models.EmailLog
}

func newState() state {
	return state{
		users:        make(map[uuid.UUID]models.User),
		spaces:       make(map[uuid.UUID]models.Space),
		memberships:  make(map[memberKey]models.Membership),
		past:         make(map[memberKey]models.PastParticipant),
		invitations:  make(map[uuid.UUID]models.Invitation),
		messages:     make(map[uuid.UUID]models.Message),
		readStatuses: make(map[memberKey][]models.ReadStatus),
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.spaces {
		c.spaces[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.past {
		c.past[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	for k, v := range s.messages {
		c.messages[k] = v
	}
	for k, v := range s.readStatuses {
		c.readStatuses[k] = append([]models.ReadStatus(nil), v...)
	}
	c.notifications = append([]models.Notification(nil), s.notifications...)
	c.emailLogs = append([]models.EmailLog(nil), s.emailLogs...)
	return c
}

// Store is the in-memory implementation.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   state

	writes int

	// FailNotifications makes InsertNotification fail, for exercising retry paths.
	FailNotifications error
	// FailMembershipWrites makes InsertMemberships and DeleteMemberships fail.
	FailMembershipWrites error
	notifyAttempts    int
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// InTx runs fn against a private copy of the state and swaps it in when fn
// succeeds. Writes made outside a transaction wait for txMu, so a rollback
// never discards them.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Queries) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &Store{
		st:                   s.st.clone(),
		FailNotifications:    s.FailNotifications,
		FailMembershipWrites: s.FailMembershipWrites,
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = tx.st
	s.writes += tx.writes
	s.notifyAttempts += tx.notifyAttempts
	s.mu.Unlock()
	return nil
}

// lockWrite serializes a write with transactions and returns the unlock func.
func (s *Store) lockWrite() func() {
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

// Writes counts mutating calls that touched at least one row.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// NotificationAttempts counts InsertNotification calls, including failed ones.
func (s *Store) NotificationAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifyAttempts
}

// PutUser seeds a user profile.
func (s *Store) PutUser(u models.User) {
	defer s.lockWrite()()
	s.st.users[u.ID] = u
}

// Notifications returns every stored notification for userID in insertion order.
func (s *Store) Notifications(userID uuid.UUID) []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.st.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// ReadStatuses returns every read-status row for a message.
func (s *Store) ReadStatuses(messageID uuid.UUID) []models.ReadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ReadStatus
	for _, rows := range s.st.readStatuses {
		for _, r := range rows {
			if r.MessageID == messageID {
				out = append(out, r)
			}
		}
	}
	return out
}

// SetInvitationCreatedAt rewrites an invitation's creation time.
func (s *Store) SetInvitationCreatedAt(id uuid.UUID, at time.Time) {
	defer s.lockWrite()()
	if inv, ok := s.st.invitations[id]; ok {
		inv.CreatedAt = at
		s.st.invitations[id] = inv
	}
}

// InvitationsFor returns every invitation row for (space, email).
func (s *Store) InvitationsFor(spaceID uuid.UUID, email string) []models.Invitation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Invitation
	for _, inv := range s.st.invitations {
		if inv.SpaceID == spaceID && strings.EqualFold(inv.RecipientEmail, email) {
			out = append(out, inv)
		}
	}
	return out
}

func (s *Store) wrote() { s.writes++ }

// --- spaces ---

func (s *Store) CreateSpace(ctx context.Context, sp *models.Space) error {
	defer s.lockWrite()()
	if sp.ID == uuid.Nil {
		sp.ID = uuid.New()
	}
	now := time.Now()
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = now
	}
	sp.UpdatedAt = sp.CreatedAt
	s.st.spaces[sp.ID] = *sp
	s.wrote()
	return nil
}

func (s *Store) GetSpace(ctx context.Context, id uuid.UUID) (*models.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.st.spaces[id]
	if !ok {
		return nil, nil
	}
	return &sp, nil
}

func (s *Store) LockSpace(ctx context.Context, id uuid.UUID) (*models.Space, error) {
	return s.GetSpace(ctx, id)
}

func (s *Store) UpdateSpace(ctx context.Context, sp *models.Space) error {
	defer s.lockWrite()()
	if _, ok := s.st.spaces[sp.ID]; !ok {
		return nil
	}
	sp.UpdatedAt = time.Now()
	s.st.spaces[sp.ID] = *sp
	s.wrote()
	return nil
}

func (s *Store) MarkSpaceDeleted(ctx context.Context, id uuid.UUID) error {
	defer s.lockWrite()()
	sp, ok := s.st.spaces[id]
	if !ok {
		return nil
	}
	sp.IsDeleted = true
	s.st.spaces[id] = sp
	s.wrote()
	return nil
}

func (s *Store) SetLastMessage(ctx context.Context, spaceID, messageID uuid.UUID) error {
	defer s.lockWrite()()
	sp, ok := s.st.spaces[spaceID]
	if !ok {
		return nil
	}
	id := messageID
	sp.LastMessageID = &id
	s.st.spaces[spaceID] = sp
	s.wrote()
	return nil
}

func (s *Store) memberCount(spaceID uuid.UUID) int {
	n := 0
	for k := range s.st.memberships {
		if k.space == spaceID {
			n++
		}
	}
	return n
}

func (s *Store) GetSpaceDetail(ctx context.Context, spaceID, viewerID uuid.UUID) (*models.SpaceDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.st.spaces[spaceID]
	if !ok {
		return nil, nil
	}
	_, joined := s.st.memberships[memberKey{spaceID, viewerID}]
	return &models.SpaceDetail{Space: sp, MemberCount: s.memberCount(spaceID), Joined: joined}, nil
}

func (s *Store) ListUserSpaces(ctx context.Context, userID uuid.UUID) ([]models.SpaceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SpaceSummary
	for id, sp := range s.st.spaces {
		if sp.IsDeleted {
			continue
		}
		key := memberKey{id, userID}
		sum := models.SpaceSummary{Space: sp, MemberCount: s.memberCount(id)}
		if _, ok := s.st.memberships[key]; ok {
			sum.IsCurrentMember = true
			sum.Status = models.StatusMember
		} else if p, ok := s.st.past[key]; ok {
			sum.Status = p.Status
			sum.LeftAt = p.Cutoff()
		} else {
			continue
		}
		for _, r := range s.st.readStatuses[key] {
			if !r.Read {
				sum.UnreadMessageCount++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// --- memberships ---

func (s *Store) ListMemberIDs(ctx context.Context, spaceID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ms []models.Membership
	for k, m := range s.st.memberships {
		if k.space == spaceID {
			ms = append(ms, m)
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].CreatedAt.Before(ms[j].CreatedAt) })
	ids := make([]uuid.UUID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

func (s *Store) IsMember(ctx context.Context, spaceID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.st.memberships[memberKey{spaceID, userID}]
	return ok, nil
}

func (s *Store) InsertMemberships(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID, at time.Time) error {
	defer s.lockWrite()()
	if s.FailMembershipWrites != nil {
		return s.FailMembershipWrites
	}
	inserted := false
	for _, id := range userIDs {
		key := memberKey{spaceID, id}
		if _, ok := s.st.memberships[key]; ok {
			continue
		}
		s.st.memberships[key] = models.Membership{UserID: id, SpaceID: spaceID, CreatedAt: at}
		inserted = true
	}
	if inserted {
		s.wrote()
	}
	return nil
}

func (s *Store) DeleteMemberships(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID) error {
	defer s.lockWrite()()
	if s.FailMembershipWrites != nil {
		return s.FailMembershipWrites
	}
	deleted := false
	for _, id := range userIDs {
		key := memberKey{spaceID, id}
		if _, ok := s.st.memberships[key]; ok {
			delete(s.st.memberships, key)
			deleted = true
		}
	}
	if deleted {
		s.wrote()
	}
	return nil
}

func (s *Store) ListCurrentPastIDs(ctx context.Context, spaceID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for k := range s.st.past {
		if k.space == spaceID {
			ids = append(ids, k.user)
		}
	}
	return ids, nil
}

func (s *Store) GetCurrentPast(ctx context.Context, spaceID, userID uuid.UUID) (*models.PastParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.past[memberKey{spaceID, userID}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) InsertPastParticipants(ctx context.Context, rows []models.PastParticipant) error {
	if len(rows) == 0 {
		return nil
	}
	defer s.lockWrite()()
	for _, p := range rows {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		s.st.past[memberKey{p.SpaceID, p.UserID}] = p
	}
	s.wrote()
	return nil
}

func (s *Store) DeletePastParticipants(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID) error {
	defer s.lockWrite()()
	deleted := false
	for _, id := range userIDs {
		key := memberKey{spaceID, id}
		if _, ok := s.st.past[key]; ok {
			delete(s.st.past, key)
			deleted = true
		}
	}
	if deleted {
		s.wrote()
	}
	return nil
}

// --- invitations ---

func (s *Store) InsertInvitation(ctx context.Context, inv *models.Invitation) error {
	defer s.lockWrite()()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	s.st.invitations[inv.ID] = *inv
	s.wrote()
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.st.invitations[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (s *Store) LockInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	return s.GetInvitation(ctx, id)
}

func (s *Store) LockLatestInvitation(ctx context.Context, spaceID uuid.UUID, email string) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Invitation
	for _, inv := range s.st.invitations {
		if inv.SpaceID != spaceID || !strings.EqualFold(inv.RecipientEmail, email) {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			cp := inv
			latest = &cp
		}
	}
	return latest, nil
}

func (s *Store) ListInvitations(ctx context.Context, spaceID uuid.UUID) ([]models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Invitation
	for _, inv := range s.st.invitations {
		if inv.SpaceID == spaceID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteInvitations(ctx context.Context, spaceID uuid.UUID, email string) error {
	defer s.lockWrite()()
	deleted := false
	for id, inv := range s.st.invitations {
		if inv.SpaceID == spaceID && strings.EqualFold(inv.RecipientEmail, email) {
			delete(s.st.invitations, id)
			deleted = true
		}
	}
	if deleted {
		s.wrote()
	}
	return nil
}

func (s *Store) DeleteInvitationsExcept(ctx context.Context, spaceID uuid.UUID, keep []string) error {
	defer s.lockWrite()()
	kept := make(map[string]struct{}, len(keep))
	for _, e := range keep {
		kept[strings.ToLower(e)] = struct{}{}
	}
	deleted := false
	for id, inv := range s.st.invitations {
		if inv.SpaceID != spaceID {
			continue
		}
		if _, ok := kept[strings.ToLower(inv.RecipientEmail)]; !ok {
			delete(s.st.invitations, id)
			deleted = true
		}
	}
	if deleted {
		s.wrote()
	}
	return nil
}

func (s *Store) updateInvitation(id uuid.UUID, fn func(*models.Invitation)) {
	defer s.lockWrite()()
	inv, ok := s.st.invitations[id]
	if !ok {
		return
	}
	fn(&inv)
	s.st.invitations[id] = inv
	s.wrote()
}

func (s *Store) MarkInvitationSent(ctx context.Context, id uuid.UUID) error {
	s.updateInvitation(id, func(inv *models.Invitation) { inv.Sent = true })
	return nil
}

func (s *Store) MarkInvitationExpired(ctx context.Context, id uuid.UUID) error {
	s.updateInvitation(id, func(inv *models.Invitation) { inv.Expired = true })
	return nil
}

func (s *Store) MarkInvitationJoined(ctx context.Context, id uuid.UUID) error {
	s.updateInvitation(id, func(inv *models.Invitation) { inv.Joined = true })
	return nil
}

func (s *Store) ListExpirableInvitations(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for id, inv := range s.st.invitations {
		if inv.Open() && !inv.CreatedAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// --- messages ---

func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	defer s.lockWrite()()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.st.messages[m.ID] = *m
	s.wrote()
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.st.messages[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	defer s.lockWrite()()
	if _, ok := s.st.messages[id]; !ok {
		return nil
	}
	delete(s.st.messages, id)
	for k, rows := range s.st.readStatuses {
		kept := rows[:0]
		for _, r := range rows {
			if r.MessageID != id {
				kept = append(kept, r)
			}
		}
		s.st.readStatuses[k] = kept
	}
	s.wrote()
	return nil
}

func (s *Store) ListMessages(ctx context.Context, spaceID uuid.UUID, cutoff *time.Time, limit, offset int) ([]models.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.Message
	for _, m := range s.st.messages {
		if m.SpaceID != spaceID {
			continue
		}
		if cutoff != nil && m.CreatedAt.After(*cutoff) {
			continue
		}
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []models.Message{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) InsertReadStatuses(ctx context.Context, rows []models.ReadStatus) error {
	if len(rows) == 0 {
		return nil
	}
	defer s.lockWrite()()
	for _, r := range rows {
		key := memberKey{r.SpaceID, r.UserID}
		s.st.readStatuses[key] = append(s.st.readStatuses[key], r)
	}
	s.wrote()
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, spaceID, userID uuid.UUID) (int64, error) {
	defer s.lockWrite()()
	rows := s.st.readStatuses[memberKey{spaceID, userID}]
	var n int64
	for i := range rows {
		if !rows[i].Read {
			rows[i].Read = true
			n++
		}
	}
	if n > 0 {
		s.wrote()
	}
	return n, nil
}

func (s *Store) CountUnread(ctx context.Context, spaceID, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.st.readStatuses[memberKey{spaceID, userID}] {
		if !r.Read {
			n++
		}
	}
	return n, nil
}

// --- notifications ---

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	defer s.lockWrite()()
	s.notifyAttempts++
	if s.FailNotifications != nil {
		return s.FailNotifications
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.st.notifications = append(s.st.notifications, *n)
	s.wrote()
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mine []models.Notification
	for i := len(s.st.notifications) - 1; i >= 0; i-- {
		if n := s.st.notifications[i]; n.UserID == userID {
			mine = append(mine, n)
		}
	}
	total := len(mine)
	if offset >= total {
		return []models.Notification{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (s *Store) CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, no := range s.st.notifications {
		if no.UserID == userID && !no.Read {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	defer s.lockWrite()()
	for i := range s.st.notifications {
		if s.st.notifications[i].ID == id && s.st.notifications[i].UserID == userID {
			s.st.notifications[i].Read = true
			s.wrote()
			n := s.st.notifications[i]
			return &n, nil
		}
	}
	return nil, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	defer s.lockWrite()()
	var n int64
	for i := range s.st.notifications {
		if s.st.notifications[i].UserID == userID && !s.st.notifications[i].Read {
			s.st.notifications[i].Read = true
			n++
		}
	}
	if n > 0 {
		s.wrote()
	}
	return n, nil
}

// --- users ---

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) ListUsersByEmail(ctx context.Context, emails []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[strings.ToLower(e)] = struct{}{}
	}
	var out []models.User
	for _, u := range s.st.users {
		if _, ok := want[strings.ToLower(u.Email)]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) ExistingUserIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := s.st.users[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// --- email logs ---

func (s *Store) InsertEmailLog(ctx context.Context, l *models.EmailLog) error {
	defer s.lockWrite()()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	s.st.emailLogs = append(s.st.emailLogs, *l)
	s.wrote()
	return nil
}

func (s *Store) ListEmailLogs(ctx context.Context, spaceID uuid.UUID) ([]models.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EmailLog
	for i := len(s.st.emailLogs) - 1; i >= 0; i-- {
		if l := s.st.emailLogs[i]; l.SpaceID == spaceID {
			out = append(out, l)
		}
	}
	return out, nil
}
