package tasks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// dataDir is the sandbox every file task reads and writes under. Names
// are sanitized so a task can never escape it.
var dataDir = "./data"

// SetDataDir overrides the sandbox root, normally called once at
// startup from the loaded configuration's data_dir.
func SetDataDir(dir string) {
	if dir != "" {
		dataDir = dir
	}
}

func init() {
	register("createfile", createFile)
	register("deletefile", deleteFile)
	register("timestamp", timestamp)
}

// sanitize rejects any name containing a path separator or a ".."
// traversal segment, so file tasks can never read or write outside
// dataDir.
func sanitize(name string) (string, bool) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return "", false
	}
	return name, true
}

// resolvePath sanitizes name and joins it under dataDir.
func resolvePath(name string) (string, error) {
	clean, ok := sanitize(name)
	if !ok {
		return "", fmt.Errorf("invalid file name")
	}
	return filepath.Join(dataDir, clean), nil
}

func notFoundOr(err error, msg string) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%s", msg)
	}
	return err
}

func copyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 64*1024)
	return io.CopyBuffer(dst, src, buf)
}

// createFile answers /jobs/submit?task=createfile&name=FILE&content=TXT
// [&repeat=N][&mode=fail|overwrite|autorename].
func createFile(params map[string]string) (string, error) {
	name := params["name"]
	if _, ok := sanitize(name); !ok {
		return "", fmt.Errorf("invalid file name")
	}
	repeat := 1
	if r, err := strconv.Atoi(params["repeat"]); err == nil && r > 0 {
		repeat = r
	}
	content := strings.Repeat(params["content"], repeat)

	mode := params["mode"]
	if mode == "" {
		mode = "fail"
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir failed: %w", err)
	}

	finalName := name
	path := filepath.Join(dataDir, name)
	if _, err := os.Stat(path); err == nil {
		switch mode {
		case "overwrite":
			// fall through, write over it
		case "autorename":
			finalName = firstAvailableName(name)
			path = filepath.Join(dataDir, finalName)
		default:
			return "", fmt.Errorf("file already exists")
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write failed: %w", err)
	}
	out, _ := json.Marshal(map[string]any{"file": finalName, "bytes": len(content)})
	return string(out), nil
}

// firstAvailableName finds "name (1)", "name (2)", ... the first of
// which doesn't already exist under dataDir, preserving the extension.
func firstAvailableName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(filepath.Join(dataDir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

// deleteFile answers /jobs/submit?task=deletefile&name=FILE.
func deleteFile(params map[string]string) (string, error) {
	path, err := resolvePath(params["name"])
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", notFoundOr(err, "file does not exist")
	}
	out, _ := json.Marshal(map[string]any{"file": params["name"], "deleted": true})
	return string(out), nil
}

// timestamp answers /timestamp with the current epoch and UTC time.
func timestamp(params map[string]string) (string, error) {
	now := time.Now().UTC()
	out, _ := json.Marshal(map[string]any{"unix": now.Unix(), "utc": now.Format(time.RFC3339)})
	return string(out), nil
}
