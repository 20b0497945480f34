package config

import (
	"fmt"
	"os"
)

// Template is a commented receiptctl.toml holding the default values.
const Template = `# receiptctl configuration

[listener]
addr = "0.0.0.0:9100"
chunk_size = 16
# end a job after this long without data; "0s" waits for the client to close
idle_timeout = "0s"
# raw bytes kept for the printer; larger jobs are decoded but not forwarded
max_job_bytes = 0

[printer]
enabled = true
addr = "printer:9100"
connect_timeout = "3s"
write_timeout = "10s"
max_attempts = 1
backoff_initial = "250ms"
backoff_max = "5s"

[http]
# empty addr disables the report API
addr = "127.0.0.1:8080"
cors_origins = ["http://localhost:3000"]

[redis]
# empty addr disables the redis sink
addr = ""
password = ""
db = 0
key = "receiptctl:receipts"
channel = "receiptctl:receipts:events"
max_entries = 1000

[log]
level = "info"
json = false
`

// WriteTemplate writes Template to path, refusing to replace an existing
// file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}
