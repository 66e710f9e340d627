package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CAMPUS_TEST_MODE") == "" {
			_ = os.Setenv("CAMPUS_TEST_MODE", "1")
		}
	})
}
