package v1

// HostOS is the operating system family of the host.
type HostOS string

const (
	OSLinux   HostOS = "linux"
	OSMacOS   HostOS = "macos"
	OSWindows HostOS = "windows"
	OSFreeBSD HostOS = "freebsd"
)

// HostArch is the CPU architecture of the host.
type HostArch string

const (
	ArchX64   HostArch = "x64"
	ArchX86   HostArch = "x86"
	ArchArm64 HostArch = "arm64"
	ArchArm   HostArch = "arm"
)

// Environment describes the host and, once known, the version being operated on.
type Environment struct {
	OS      HostOS   `json:"os"`
	Arch    HostArch `json:"arch"`
	Version string   `json:"version,omitempty"`
}

// ToolType distinguishes tools installed from artifacts from tools that wrap an
// executable already present on PATH.
type ToolType string

const (
	TypeNative           ToolType = "native"
	TypeExecutableOnPath ToolType = "executable-on-path"
)

type RegisterToolInput struct {
	ID string `json:"id"`
}

type RegisterToolOutput struct {
	Name          string   `json:"name"`
	TypeOf        ToolType `json:"type_of,omitempty"`
	PluginVersion string   `json:"plugin_version,omitempty"`
}

func (o *RegisterToolOutput) SetDefaults() {
	o.TypeOf = TypeNative
}

type DetectVersionOutput struct {
	// Files are searched in order, the first one yielding a version wins.
	Files []string `json:"files"`
}

type ParseVersionFileInput struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

type ParseVersionFileOutput struct {
	Version string `json:"version,omitempty"`
}

type DownloadPrebuiltInput struct {
	Env Environment `json:"env"`
}

type DownloadPrebuiltOutput struct {
	DownloadURL   string `json:"download_url,omitempty"`
	DownloadName  string `json:"download_name,omitempty"`
	ChecksumURL   string `json:"checksum_url,omitempty"`
	ChecksumName  string `json:"checksum_name,omitempty"`
	ArchivePrefix string `json:"archive_prefix,omitempty"`
}

type LocateBinsInput struct {
	Env Environment `json:"env"`
}

type LocateBinsOutput struct {
	// BinPath is relative to the install directory.
	BinPath           string   `json:"bin_path,omitempty"`
	GlobalsLookupDirs []string `json:"globals_lookup_dirs,omitempty"`
}

type LoadVersionsInput struct {
	Initial string `json:"initial,omitempty"`
}

type LoadVersionsOutput struct {
	// Versions are ordered by the plugin, typically newest first.
	Versions []string          `json:"versions"`
	Latest   string            `json:"latest,omitempty"`
	Aliases  map[string]string `json:"aliases,omitempty"`
}

type ResolveVersionInput struct {
	Initial string `json:"initial"`
}

type ResolveVersionOutput struct {
	// Candidate is a specifier to resolve again.
	Candidate string `json:"candidate,omitempty"`
	// Version is a concrete version and ends resolution.
	Version string `json:"version,omitempty"`
}

type ShimConfig struct {
	// BinPath is relative to the install directory. Defaults to the located bin.
	BinPath string `json:"bin_path,omitempty"`
	// ParentBin routes the shim through another executable, for example a runtime
	// executing a package manager script.
	ParentBin  string   `json:"parent_bin,omitempty"`
	BeforeArgs []string `json:"before_args,omitempty"`
}

type CreateShimsInput struct {
	Env Environment `json:"env"`
}

type CreateShimsOutput struct {
	GlobalShims     map[string]ShimConfig `json:"global_shims,omitempty"`
	LocalShims      map[string]ShimConfig `json:"local_shims,omitempty"`
	NoPrimaryGlobal bool                  `json:"no_primary_global,omitempty"`
}

type VerifyChecksumInput struct {
	DownloadFile string      `json:"download_file"`
	ChecksumFile string      `json:"checksum_file"`
	Env          Environment `json:"env"`
	// DownloadSHA256 and ChecksumContent are computed by the host so that plugins
	// without filesystem access can still verify.
	DownloadSHA256  string `json:"download_sha256,omitempty"`
	ChecksumContent string `json:"checksum_content,omitempty"`
}

type VerifyChecksumOutput struct {
	Verified bool `json:"verified"`
}

type InstallInput struct {
	InstallDir   string      `json:"install_dir"`
	DownloadPath string      `json:"download_path,omitempty"`
	Env          Environment `json:"env"`
}

type InstallOutput struct {
	Installed bool `json:"installed"`
}

type UninstallInput struct {
	InstallDir string      `json:"install_dir"`
	Env        Environment `json:"env"`
}

type UninstallOutput struct {
	Uninstalled bool `json:"uninstalled"`
}

type ExecCommandInput struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

type ExecCommandOutput struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

type FetchURLInput struct {
	URL string `json:"url"`
}

type TraceInput struct {
	Message string `json:"message"`
}

// Empty is the input of capabilities that take no arguments.
type Empty struct{}
