package global

const (
	RootFlag             = "root"
	ConfigFlag           = "config"
	WorkingDirectoryFlag = "working-directory"
)
