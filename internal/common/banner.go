package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the startup banner for a binary
func PrintBanner(service string) {
	banner.PrintSimple(service, GetVersion())
}
