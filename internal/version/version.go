package version

var Version = "unknown"
var Commit = "unknown"

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
