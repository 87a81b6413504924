package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/CollarNetworks/protocol-core-sub005/core/types"
	"github.com/CollarNetworks/protocol-core-sub005/native/escrow"
	"github.com/CollarNetworks/protocol-core-sub005/native/loans"
	"github.com/CollarNetworks/protocol-core-sub005/native/provider"
	"github.com/CollarNetworks/protocol-core-sub005/native/rolls"
	"github.com/CollarNetworks/protocol-core-sub005/native/taker"
	"github.com/CollarNetworks/protocol-core-sub005/storage"
)

// Key layout. Every record lives under a typed prefix;sequence counters are
// big-endian uint64 values under the seq prefix.
const (
	prefixAccount          = "collar/account/"
	prefixProviderOffer    = "collar/provider/offer/"
	prefixProviderPosition = "collar/provider/position/"
	prefixTakerPosition    = "collar/taker/position/"
	prefixRollOffer        = "collar/rolls/offer/"
	prefixEscrowOffer      = "collar/escrow/offer/"
	prefixEscrow           = "collar/escrow/record/"
	prefixLoan             = "collar/loans/loan/"
	prefixPause            = "collar/pause/"
	prefixSeq              = "collar/seq/"
)

// Sequence names. Taker and provider positions share one counter so the pair
// always carries distinct IDs and a loan can reuse its taker position's ID.
const (
	seqProviderOffer = "provider-offer"
	seqPosition      = "position"
	seqRollOffer     = "roll-offer"
	seqEscrowOffer   = "escrow-offer"
	seqEscrow        = "escrow"
)

// CollarState is the single persistence layer shared by every engine. Each
// engine sees only its own narrow view (ProviderView, TakerView, ...), all
// backed by the same key-value store, so cross-engine operations observe one
// consistent ledger.
type CollarState struct {
	db storage.Database
	mu sync.Mutex
	tx *stateTx
}

// stateTx buffers every write issued during a transaction so an aborted
// operation leaves the backing store untouched.
type stateTx struct {
	writes map[string][]byte
}

// NewCollarState wraps a key-value backend.
func NewCollarState(db storage.Database) *CollarState {
	return &CollarState{db: db}
}

// Transaction runs fn with all writes buffered. A nil return flushes the
// buffer to the backing store in one pass; any error discards it, so fn
// either takes full effect or none. Transactions do not nest and callers
// must serialize them; node.Node holds the lock that does.
func (s *CollarState) Transaction(fn func() error) error {
	if s.tx != nil {
		return fmt.Errorf("state: transaction already open")
	}
	s.tx = &stateTx{writes: make(map[string][]byte)}
	err := fn()
	tx := s.tx
	s.tx = nil
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tx.writes))
	for key := range tx.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := s.db.Put([]byte(key), tx.writes[key]); err != nil {
			return fmt.Errorf("state: commit %s: %w", key, err)
		}
	}
	return nil
}

func (s *CollarState) rawPut(key string, raw []byte) error {
	if s.tx != nil {
		s.tx.writes[key] = raw
		return nil
	}
	return s.db.Put([]byte(key), raw)
}

func (s *CollarState) rawGet(key string) ([]byte, error) {
	if s.tx != nil {
		if raw, ok := s.tx.writes[key]; ok {
			return raw, nil
		}
	}
	return s.db.Get([]byte(key))
}

// iterate walks prefix in key order, folding in any writes buffered by an
// open transaction so in-flight records are visible to their own operation.
func (s *CollarState) iterate(prefix string, fn func(key, value []byte) (bool, error)) error {
	if s.tx == nil || len(s.tx.writes) == 0 {
		return s.db.Iterate([]byte(prefix), fn)
	}
	merged := make(map[string][]byte)
	err := s.db.Iterate([]byte(prefix), func(key, value []byte) (bool, error) {
		merged[string(key)] = append([]byte(nil), value...)
		return true, nil
	})
	if err != nil {
		return err
	}
	for key, raw := range s.tx.writes {
		if strings.HasPrefix(key, prefix) {
			merged[key] = raw
		}
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cont, err := fn([]byte(key), merged[key])
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (s *CollarState) putJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return s.rawPut(key, raw)
}

// getJSON decodes the record at key into out, reporting whether it existed.
func (s *CollarState) getJSON(key string, out interface{}) (bool, error) {
	raw, err := s.rawGet(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// idKey zero-pads IDs so lexicographic iteration order matches numeric
// order.
func idKey(prefix string, id uint64) string {
	return fmt.Sprintf("%s%020d", prefix, id)
}

func accountKey(addr [20]byte) string {
	return prefixAccount + hex.EncodeToString(addr[:])
}

// nextID increments and returns the named sequence, starting at 1.
func (s *CollarState) nextID(name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefixSeq + name
	var current uint64
	raw, err := s.rawGet(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, err
	case len(raw) == 8:
		current = binary.BigEndian.Uint64(raw)
	default:
		return 0, fmt.Errorf("state: corrupt sequence %s", name)
	}
	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.rawPut(key, buf); err != nil {
		return 0, err
	}
	return next, nil
}

// GetAccount returns the stored account or nil when the address is unknown.
func (s *CollarState) GetAccount(addr [20]byte) (*types.Account, error) {
	var acc types.Account
	ok, err := s.getJSON(accountKey(addr), &acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (s *CollarState) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account for %x", addr)
	}
	return s.putJSON(accountKey(addr), account.EnsureBalances())
}

// SetPaused persists the governance pause flag for a module.
func (s *CollarState) SetPaused(module string, paused bool) error {
	return s.putJSON(prefixPause+module, paused)
}

// IsPaused implements the engines' pause view.
func (s *CollarState) IsPaused(module string) bool {
	var paused bool
	ok, err := s.getJSON(prefixPause+module, &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

func (s *CollarState) getProviderOffer(id uint64) (*provider.LiquidityOffer, error) {
	var offer provider.LiquidityOffer
	ok, err := s.getJSON(idKey(prefixProviderOffer, id), &offer)
	if err != nil || !ok {
		return nil, err
	}
	return &offer, nil
}

func (s *CollarState) getProviderPosition(id uint64) (*provider.Position, error) {
	var position provider.Position
	ok, err := s.getJSON(idKey(prefixProviderPosition, id), &position)
	if err != nil || !ok {
		return nil, err
	}
	return &position, nil
}

func (s *CollarState) getTakerPosition(id uint64) (*taker.Position, error) {
	var position taker.Position
	ok, err := s.getJSON(idKey(prefixTakerPosition, id), &position)
	if err != nil || !ok {
		return nil, err
	}
	return &position, nil
}

func (s *CollarState) getRollOffer(id uint64) (*rolls.Offer, error) {
	var offer rolls.Offer
	ok, err := s.getJSON(idKey(prefixRollOffer, id), &offer)
	if err != nil || !ok {
		return nil, err
	}
	return &offer, nil
}

func (s *CollarState) getEscrowOffer(id uint64) (*escrow.SupplierOffer, error) {
	var offer escrow.SupplierOffer
	ok, err := s.getJSON(idKey(prefixEscrowOffer, id), &offer)
	if err != nil || !ok {
		return nil, err
	}
	return &offer, nil
}

func (s *CollarState) getEscrow(id uint64) (*escrow.Escrow, error) {
	var esc escrow.Escrow
	ok, err := s.getJSON(idKey(prefixEscrow, id), &esc)
	if err != nil || !ok {
		return nil, err
	}
	return &esc, nil
}

func (s *CollarState) getLoan(id uint64) (*loans.Loan, error) {
	var loan loans.Loan
	ok, err := s.getJSON(idKey(prefixLoan, id), &loan)
	if err != nil || !ok {
		return nil, err
	}
	return &loan, nil
}

// listJSON collects up to limit records under prefix, skipping offset, in
// ascending ID order. decode unmarshals one record and appends it.
func (s *CollarState) listJSON(prefix string, offset, limit int, decode func(raw []byte) error) error {
	if limit <= 0 {
		limit = 50
	}
	skipped, taken := 0, 0
	return s.iterate(prefix, func(key, value []byte) (bool, error) {
		if skipped < offset {
			skipped++
			return true, nil
		}
		if err := decode(value); err != nil {
			return false, err
		}
		taken++
		return taken < limit, nil
	})
}

// ProviderOffers pages through the liquidity offer book.
func (s *CollarState) ProviderOffers(offset, limit int) ([]*provider.LiquidityOffer, error) {
	var out []*provider.LiquidityOffer
	err := s.listJSON(prefixProviderOffer, offset, limit, func(raw []byte) error {
		var offer provider.LiquidityOffer
		if err := json.Unmarshal(raw, &offer); err != nil {
			return err
		}
		out = append(out, &offer)
		return nil
	})
	return out, err
}

// EscrowOffers pages through the supplier offer book.
func (s *CollarState) EscrowOffers(offset, limit int) ([]*escrow.SupplierOffer, error) {
	var out []*escrow.SupplierOffer
	err := s.listJSON(prefixEscrowOffer, offset, limit, func(raw []byte) error {
		var offer escrow.SupplierOffer
		if err := json.Unmarshal(raw, &offer); err != nil {
			return err
		}
		out = append(out, &offer)
		return nil
	})
	return out, err
}

// ProviderView is the provider engine's window into the shared state.
type ProviderView struct{ s *CollarState }

func (s *CollarState) ProviderView() ProviderView { return ProviderView{s: s} }

func (v ProviderView) GetOffer(id uint64) (*provider.LiquidityOffer, error) {
	return v.s.getProviderOffer(id)
}

func (v ProviderView) PutOffer(offer *provider.LiquidityOffer) error {
	return v.s.putJSON(idKey(prefixProviderOffer, offer.ID), offer)
}

func (v ProviderView) NextOfferID() (uint64, error) { return v.s.nextID(seqProviderOffer) }

func (v ProviderView) GetPosition(id uint64) (*provider.Position, error) {
	return v.s.getProviderPosition(id)
}

func (v ProviderView) PutPosition(position *provider.Position) error {
	return v.s.putJSON(idKey(prefixProviderPosition, position.ID), position)
}

func (v ProviderView) NextPositionID() (uint64, error) { return v.s.nextID(seqPosition) }

func (v ProviderView) GetAccount(addr [20]byte) (*types.Account, error) { return v.s.GetAccount(addr) }

func (v ProviderView) PutAccount(addr [20]byte, account *types.Account) error {
	return v.s.PutAccount(addr, account)
}

// TakerView is the taker engine's window into the shared state.
type TakerView struct{ s *CollarState }

func (s *CollarState) TakerView() TakerView { return TakerView{s: s} }

func (v TakerView) GetPosition(id uint64) (*taker.Position, error) {
	return v.s.getTakerPosition(id)
}

func (v TakerView) PutPosition(position *taker.Position) error {
	return v.s.putJSON(idKey(prefixTakerPosition, position.ID), position)
}

func (v TakerView) NextPositionID() (uint64, error) { return v.s.nextID(seqPosition) }

func (v TakerView) GetAccount(addr [20]byte) (*types.Account, error) { return v.s.GetAccount(addr) }

func (v TakerView) PutAccount(addr [20]byte, account *types.Account) error {
	return v.s.PutAccount(addr, account)
}

// RollsView is the rolls engine's window into the shared state.
type RollsView struct{ s *CollarState }

func (s *CollarState) RollsView() RollsView { return RollsView{s: s} }

func (v RollsView) GetRollOffer(id uint64) (*rolls.Offer, error) { return v.s.getRollOffer(id) }

func (v RollsView) PutRollOffer(offer *rolls.Offer) error {
	return v.s.putJSON(idKey(prefixRollOffer, offer.ID), offer)
}

func (v RollsView) NextRollOfferID() (uint64, error) { return v.s.nextID(seqRollOffer) }

func (v RollsView) GetAccount(addr [20]byte) (*types.Account, error) { return v.s.GetAccount(addr) }

func (v RollsView) PutAccount(addr [20]byte, account *types.Account) error {
	return v.s.PutAccount(addr, account)
}

// EscrowView is the escrow engine's window into the shared state.
type EscrowView struct{ s *CollarState }

func (s *CollarState) EscrowView() EscrowView { return EscrowView{s: s} }

func (v EscrowView) GetEscrowOffer(id uint64) (*escrow.SupplierOffer, error) {
	return v.s.getEscrowOffer(id)
}

func (v EscrowView) PutEscrowOffer(offer *escrow.SupplierOffer) error {
	return v.s.putJSON(idKey(prefixEscrowOffer, offer.ID), offer)
}

func (v EscrowView) NextEscrowOfferID() (uint64, error) { return v.s.nextID(seqEscrowOffer) }

func (v EscrowView) GetEscrow(id uint64) (*escrow.Escrow, error) { return v.s.getEscrow(id) }

func (v EscrowView) PutEscrow(esc *escrow.Escrow) error {
	return v.s.putJSON(idKey(prefixEscrow, esc.ID), esc)
}

func (v EscrowView) NextEscrowID() (uint64, error) { return v.s.nextID(seqEscrow) }

func (v EscrowView) GetAccount(addr [20]byte) (*types.Account, error) { return v.s.GetAccount(addr) }

func (v EscrowView) PutAccount(addr [20]byte, account *types.Account) error {
	return v.s.PutAccount(addr, account)
}

// LoansView is the loans engine's window into the shared state.
type LoansView struct{ s *CollarState }

func (s *CollarState) LoansView() LoansView { return LoansView{s: s} }

func (v LoansView) GetLoan(id uint64) (*loans.Loan, error) { return v.s.getLoan(id) }

func (v LoansView) PutLoan(loan *loans.Loan) error {
	return v.s.putJSON(idKey(prefixLoan, loan.ID), loan)
}

func (v LoansView) GetAccount(addr [20]byte) (*types.Account, error) { return v.s.GetAccount(addr) }

func (v LoansView) PutAccount(addr [20]byte, account *types.Account) error {
	return v.s.PutAccount(addr, account)
}
