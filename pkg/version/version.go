package version

// version is overridden at build time with
// -ldflags "-X github.com/cbodonnell/gameportal/pkg/version.version=v1.2.3"
var version = "dev"

func Get() string {
	return version
}
