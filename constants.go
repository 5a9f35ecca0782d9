package similarity

const (
	DefaultBaseURL = "http://localhost:5000/api"
	EnvBaseURL     = "SIMILARITY_API_URL"
	EnvTimeout     = "SIMILARITY_TIMEOUT"
	EnvDebug       = "SIMILARITY_DEBUG"

	APIKeyHeader = "API-Key"

	MimeJSON   = "application/json"
	MimeCSV    = "text/csv"
	MimeBase64 = "base64"

	userAgent = "similarity-go-client/1.0"
)
