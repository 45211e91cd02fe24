//go:build !windows

package browser

func registryAppPath(hive, key string) (string, error) {
	return "", ErrNotFound
}
