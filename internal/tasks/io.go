package tasks

import (
	"bufio"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

func init() {
	register("wordcount", wordCount)
	register("grep", grep)
	register("hashfile", hashFile)
	register("sortfile", sortFile)
	register("compress", compressFile)
}

// wordCount answers /jobs/submit?task=wordcount&name=FILE — lines, words,
// bytes, streamed so large files don't load fully into memory.
func wordCount(params map[string]string) (string, error) {
	path, err := resolvePath(params["name"])
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", notFoundOr(err, "file does not exist")
	}
	defer f.Close()

	var lines, words, bytesN int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		lines++
		bytesN += int64(len(line)) + 1
		words += int64(len(strings.Fields(line)))
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	out, _ := json.Marshal(map[string]any{"file": params["name"], "lines": lines, "words": words, "bytes": bytesN})
	return string(out), nil
}

// grep answers /jobs/submit?task=grep&name=FILE&pattern=REGEX, returning
// up to the first 10 matching lines.
func grep(params map[string]string) (string, error) {
	path, err := resolvePath(params["name"])
	if err != nil {
		return "", err
	}
	pattern := params["pattern"]
	if pattern == "" {
		return "", fmt.Errorf("pattern required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", notFoundOr(err, "file does not exist")
	}
	defer f.Close()

	const maxMatches = 10
	var matches []string
	var total int64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if re.MatchString(line) {
			total++
			if len(matches) < maxMatches {
				matches = append(matches, line)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	out, _ := json.Marshal(map[string]any{"file": params["name"], "matches": matches, "total_matches": total})
	return string(out), nil
}

// hashFile answers /jobs/submit?task=hashfile&name=FILE with a streaming
// SHA-256 digest.
func hashFile(params map[string]string) (string, error) {
	path, err := resolvePath(params["name"])
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", notFoundOr(err, "file does not exist")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := copyBuffered(h, f); err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}
	out, _ := json.Marshal(map[string]any{"file": params["name"], "algo": "sha256", "hex": hex.EncodeToString(h.Sum(nil))})
	return string(out), nil
}

// sortFile answers /jobs/submit?task=sortfile&name=FILE, sorting the
// file's lines lexicographically in memory and overwriting it.
func sortFile(params map[string]string) (string, error) {
	path, err := resolvePath(params["name"])
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", notFoundOr(err, "file does not exist")
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	sort.Strings(lines)
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write failed: %w", err)
	}
	out, _ := json.Marshal(map[string]any{"file": params["name"], "lines_sorted": len(lines)})
	return string(out), nil
}

// compressFile answers /jobs/submit?task=compress&name=FILE, writing
// FILE.gz alongside the source file.
func compressFile(params map[string]string) (string, error) {
	path, err := resolvePath(params["name"])
	if err != nil {
		return "", err
	}
	src, err := os.Open(path)
	if err != nil {
		return "", notFoundOr(err, "file does not exist")
	}
	defer src.Close()

	dstPath := path + ".gz"
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("create failed: %w", err)
	}
	defer dst.Close()

	gw := gzip.NewWriter(dst)
	n, err := copyBuffered(gw, src)
	if err != nil {
		gw.Close()
		return "", fmt.Errorf("compress failed: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("compress failed: %w", err)
	}
	info, _ := os.Stat(dstPath)
	var compressedSize int64
	if info != nil {
		compressedSize = info.Size()
	}
	out, _ := json.Marshal(map[string]any{
		"file":      params["name"],
		"codec":     "gzip",
		"bytes_in":  n,
		"bytes_out": compressedSize,
		"output":    filepath.Base(dstPath),
	})
	return string(out), nil
}
