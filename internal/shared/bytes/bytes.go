package bytes

import "fmt"

var units = []struct {
	name string
	size uint64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// FmtMem renders a byte count with its two largest binary units,
// e.g. "3MB 212KB".
func FmtMem(n uint64) string {
	for i, u := range units {
		if n < u.size {
			continue
		}
		whole := n / u.size
		rem := n % u.size
		if i == len(units)-1 {
			return fmt.Sprintf("%d%s %dB", whole, u.name, rem)
		}
		next := units[i+1]
		return fmt.Sprintf("%d%s %d%s", whole, u.name, rem/next.size, next.name)
	}
	return fmt.Sprintf("%dB", n)
}
