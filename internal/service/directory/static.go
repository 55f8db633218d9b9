package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// ErrUnavailable имитирует недоступность внешнего справочника.
var ErrUnavailable = errors.New("counterparty directory unavailable")

// StaticDirectory — справочник контрагентов в памяти.
// Используется в локальном запуске и тестах вместо внешнего сервиса пользователей.
type StaticDirectory struct {
	mu      sync.RWMutex
	entries map[string]domain.CounterpartyInfo
	down    bool
}

// NewStaticDirectory создаёт справочник с начальными записями.
func NewStaticDirectory(entries ...domain.CounterpartyInfo) *StaticDirectory {
	d := &StaticDirectory{entries: make(map[string]domain.CounterpartyInfo, len(entries))}
	for _, entry := range entries {
		d.Put(entry)
	}
	return d
}

// ParseEntries разбирает список вида "ref=Display Name,ref2=Other".
// Имя можно опустить: "ref" регистрирует контрагента без отображаемого имени.
func ParseEntries(raw string) ([]domain.CounterpartyInfo, error) {
	var entries []domain.CounterpartyInfo
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ref, name, _ := strings.Cut(part, "=")
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, fmt.Errorf("directory entry %q has empty ref", part)
		}
		entries = append(entries, domain.CounterpartyInfo{Ref: ref, DisplayName: strings.TrimSpace(name)})
	}
	return entries, nil
}

// Put добавляет или заменяет запись.
func (d *StaticDirectory) Put(info domain.CounterpartyInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info.Ref = strings.TrimSpace(info.Ref)
	d.entries[info.Ref] = info
}

// SetAvailable переключает имитацию отказа справочника.
func (d *StaticDirectory) SetAvailable(available bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down = !available
}

// Refs возвращает известные ref в лексикографическом порядке.
func (d *StaticDirectory) Refs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	refs := make([]string, 0, len(d.entries))
	for ref := range d.entries {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Exists сообщает, известен ли контрагент.
func (d *StaticDirectory) Exists(ctx context.Context, ref string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.down {
		return false, ErrUnavailable
	}
	_, ok := d.entries[strings.TrimSpace(ref)]
	return ok, nil
}

// DisplayInfo возвращает данные контрагента.
func (d *StaticDirectory) DisplayInfo(ctx context.Context, ref string) (domain.CounterpartyInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.CounterpartyInfo{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.down {
		return domain.CounterpartyInfo{}, ErrUnavailable
	}
	info, ok := d.entries[strings.TrimSpace(ref)]
	if !ok {
		return domain.CounterpartyInfo{}, domain.ErrCounterpartyUnknown
	}
	return info, nil
}

var _ domain.CounterpartyDirectory = (*StaticDirectory)(nil)
