package guard

import (
	"fmt"
	"net/netip"
	"strings"
)

// Whitelist — освобождение от проверок по IP или CIDR.
//
// Сначала O(1) точное совпадение, затем линейный проход по сетям —
// whitelist задается оператором и маленький, сканирование дешевле
// префиксного дерева. Совпадение коротит всю цепочку: белый трафик
// не несет ни затрат, ни учета в окнах.
type Whitelist struct {
	exact map[string]struct{}
	nets  []netip.Prefix
}

// NewWhitelist разбирает записи конфига. Любая нечитаемая запись —
// ошибка: процесс не должен стартовать с недопонятым whitelist'ом.
func NewWhitelist(entries []string) (*Whitelist, error) {
	w := &Whitelist{exact: make(map[string]struct{}, len(entries))}

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid whitelist CIDR %q: %w", entry, err)
			}
			w.nets = append(w.nets, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid whitelist IP %q: %w", entry, err)
		}
		// Нормализуем запись, чтобы "::1" и "0:0::1" совпадали
		w.exact[addr.String()] = struct{}{}
	}

	return w, nil
}

// Match проверяет клиентский ключ. Sentinel "unknown" сюда не попадет:
// он не парсится как IP, а в exact его никто не положит.
func (w *Whitelist) Match(key string) bool {
	if _, ok := w.exact[key]; ok {
		return true
	}

	addr, err := netip.ParseAddr(key)
	if err != nil {
		return false
	}
	for _, prefix := range w.nets {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Size возвращает число записей (для стартового лога).
func (w *Whitelist) Size() int {
	return len(w.exact) + len(w.nets)
}
