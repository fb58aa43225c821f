package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the harness banner
func PrintBanner(version string) {
	banner.PrintSimple("AMSC", version)
}
