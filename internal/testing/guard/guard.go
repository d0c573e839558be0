package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("OUPTEL_ADMIN_TEST_MODE") == "" {
			_ = os.Setenv("OUPTEL_ADMIN_TEST_MODE", "1")
		}
	})
}
