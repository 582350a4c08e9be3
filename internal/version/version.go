package version

// Set at build time with -ldflags "-X github.com/tesola/staking-sync/internal/version.Version=..."
var (
	Version = "development"
	Commit  = "unknown"
)

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
