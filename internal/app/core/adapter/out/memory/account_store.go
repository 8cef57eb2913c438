package memory

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-cash-ledger/internal/app/core/domain"
)

// accountSlot 單一帳戶與保護它的鎖
type accountSlot struct {
	mu      sync.Mutex
	account *domain.Account
}

// AccountStore 持有所有帳戶與餘額
// 帳戶集合在建立後固定不變 (沒有刪除帳戶的操作)，因此 map 本身不需要鎖，
// 每個帳戶的餘額由自己的 mutex 保護
type AccountStore struct {
	slots map[domain.AccountID]*accountSlot
	// ids 依字典序排序，也就是全域鎖定順序
	ids []domain.AccountID
}

// NewAccountStore 以初始帳戶建立 AccountStore (會複製一份，不共用呼叫端的指標)
func NewAccountStore(accounts map[domain.AccountID]*domain.Account) *AccountStore {
	s := &AccountStore{
		slots: make(map[domain.AccountID]*accountSlot, len(accounts)),
		ids:   make([]domain.AccountID, 0, len(accounts)),
	}
	for id, acc := range accounts {
		s.slots[id] = &accountSlot{account: acc.Clone()}
		s.ids = append(s.ids, id)
	}
	slices.Sort(s.ids)
	return s
}

// Exists 帳戶是否存在
func (s *AccountStore) Exists(id domain.AccountID) bool {
	_, ok := s.slots[id]
	return ok
}

// IDs 回傳排序後的所有帳戶 ID
func (s *AccountStore) IDs() []domain.AccountID {
	return slices.Clone(s.ids)
}

// Lock 依傳入順序鎖定帳戶，ids 必須已排序 (domain.MergeLockIDs)
// 不存在的帳戶會被略過，回傳解鎖函式
func (s *AccountStore) Lock(ids []domain.AccountID) (unlock func()) {
	locked := make([]*accountSlot, 0, len(ids))
	for _, id := range ids {
		slot, ok := s.slots[id]
		if !ok {
			continue
		}
		slot.mu.Lock()
		locked = append(locked, slot)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}
}

// LockAll 依全域順序鎖定所有帳戶 (快照用)
func (s *AccountStore) LockAll() (unlock func()) {
	return s.Lock(s.ids)
}

// ApplyDelta 對帳戶套用帶號的 delta
// 呼叫端必須已持有該帳戶的鎖 (或在單執行緒環境)
//
// 參數:
//
//	id: 帳戶 ID
//	delta: 帶正負號的金額
//
// 回傳:
//
//	error: 帳戶不存在時回傳 domain.ErrAccountNotFound
func (s *AccountStore) ApplyDelta(id domain.AccountID, delta decimal.Decimal) error {
	slot, ok := s.slots[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	slot.account.Apply(delta)
	return nil
}

// ApplyAll 依序套用一組效果；任何一筆失敗時，已套用的會被反轉，整組視為沒發生
func (s *AccountStore) ApplyAll(effects []domain.Effect) error {
	for i, e := range effects {
		if err := s.ApplyDelta(e.AccountID, e.Delta); err != nil {
			for j := i - 1; j >= 0; j-- {
				// 前面的帳戶都已確認存在，反轉不會失敗
				_ = s.ApplyDelta(effects[j].AccountID, effects[j].Delta.Neg())
			}
			return err
		}
	}
	return nil
}

// Balance 取得帳戶餘額 (會短暫鎖定該帳戶)
func (s *AccountStore) Balance(id domain.AccountID) (decimal.Decimal, error) {
	slot, ok := s.slots[id]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.account.Balance, nil
}

// balanceLocked 呼叫端已持有鎖時讀取餘額
func (s *AccountStore) balanceLocked(id domain.AccountID) (decimal.Decimal, error) {
	slot, ok := s.slots[id]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	return slot.account.Balance, nil
}

// accountsLocked 回傳所有帳戶的複本 (依 ID 排序)，呼叫端需持有 LockAll
func (s *AccountStore) accountsLocked() []*domain.Account {
	out := make([]*domain.Account, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.slots[id].account.Clone())
	}
	return out
}
