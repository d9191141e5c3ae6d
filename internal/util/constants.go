package util

// ArchiveTimeFormat 归档路径中的时间戳格式 YYYYMMDD_HHMMSS
const ArchiveTimeFormat = "20060102_150405"

const (
	StorageLocal    = "local"
	StorageMinio    = "minio"
	StorageOSS      = "oss"
	StorageSupabase = "supabase"
)

const (
	OperationSave   = "save"
	OperationSubmit = "submit"
)

const (
	MimeJSON = "application/json"
)

const ArchiveRoot = "submissions"
