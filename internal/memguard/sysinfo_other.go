//go:build !linux

package memguard

func processRSS() (uint64, error) {
	return 0, ErrUnsupported
}

func systemMemory() (uint64, error) {
	return 0, ErrUnsupported
}
