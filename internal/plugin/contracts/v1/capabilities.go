// Package v1 defines the capability contract between the host and tool plugins.
//
// Every capability is an exported function taking one JSON document and returning one.
// Field names are snake_case so plugins written in any language can share the schema.
// Unknown fields are ignored on both sides.
package v1

// Capability is the exported function name of a single contract operation.
type Capability string

const (
	RegisterTool       Capability = "register_tool"
	DetectVersionFiles Capability = "detect_version_files"
	ParseVersionFile   Capability = "parse_version_file"
	DownloadPrebuilt   Capability = "download_prebuilt"
	LocateBins         Capability = "locate_bins"
	LoadVersions       Capability = "load_versions"
	ResolveVersion     Capability = "resolve_version"
	CreateShims        Capability = "create_shims"
	VerifyChecksum     Capability = "verify_checksum"

	// Install and Uninstall replace the generic install steps for tools that manage
	// their own toolchains.
	Install   Capability = "install"
	Uninstall Capability = "uninstall"
)

// Capabilities lists every capability in contract order.
var Capabilities = []Capability{
	RegisterTool,
	DetectVersionFiles,
	ParseVersionFile,
	DownloadPrebuilt,
	LocateBins,
	LoadVersions,
	ResolveVersion,
	CreateShims,
	VerifyChecksum,
	Install,
	Uninstall,
}

// Host function names available to sandboxed plugins.
const (
	HostTrace         = "trace"
	HostExecCommand   = "exec_command"
	HostFetchURL      = "fetch_url_with_cache"
	HostFunctionsNS   = "extism:host/user"
	ConfigToolID      = "proto_tool_id"
	ConfigEnvironment = "proto_environment"
)
