package repository

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CopyOnWriteTx stages changes to the data directory in a full copy and
// swaps it into place on commit, so readers never observe a half-written
// transcript.
type CopyOnWriteTx struct {
	baseDir   string // Data directory, e.g. .streamchat/
	tempDir   string // Staging copy .streamchat.tmp.<nanos>/
	backupDir string // Previous state .streamchat.backup.<nanos>/ during the swap
	committed bool
}

// NewCopyOnWriteTx creates a new copy-on-write transaction.
func NewCopyOnWriteTx(baseDir string) *CopyOnWriteTx {
	stamp := time.Now().UnixNano()
	return &CopyOnWriteTx{
		baseDir:   baseDir,
		tempDir:   fmt.Sprintf("%s.tmp.%d", baseDir, stamp),
		backupDir: fmt.Sprintf("%s.backup.%d", baseDir, stamp),
	}
}

// Begin copies the data directory into the staging directory. A missing
// data directory starts the transaction empty.
func (tx *CopyOnWriteTx) Begin() error {
	if _, err := os.Stat(tx.baseDir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(tx.tempDir, 0755); err != nil {
				return fmt.Errorf("create temp directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("stat base directory: %w", err)
	}

	// Files are copied, not hard-linked: a link would let staged writes
	// modify the live directory before commit.
	if err := copyDirRecursive(tx.baseDir, tx.tempDir); err != nil {
		_ = os.RemoveAll(tx.tempDir)
		return fmt.Errorf("copy directory tree: %w", err)
	}

	return nil
}

// WriteFile writes content to a file within the staging directory.
func (tx *CopyOnWriteTx) WriteFile(relativePath string, content []byte) error {
	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}

	fullPath := filepath.Join(tx.tempDir, relativePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// ReadFile reads a file from the staging directory.
func (tx *CopyOnWriteTx) ReadFile(relativePath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(tx.tempDir, relativePath))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Commit swaps the staging directory into place.
func (tx *CopyOnWriteTx) Commit() error {
	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}

	baseExists := true
	if _, err := os.Stat(tx.baseDir); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat base directory: %w", err)
		}
		baseExists = false
	}

	if baseExists {
		if err := os.Rename(tx.baseDir, tx.backupDir); err != nil {
			return fmt.Errorf("backup base directory: %w", err)
		}

		if err := os.Rename(tx.tempDir, tx.baseDir); err != nil {
			if rollbackErr := os.Rename(tx.backupDir, tx.baseDir); rollbackErr != nil {
				return fmt.Errorf("commit failed and rollback failed: commit error: %w, rollback error: %v", err, rollbackErr)
			}
			return fmt.Errorf("commit base directory (rolled back): %w", err)
		}

		// A leftover backup does not affect the committed state.
		_ = os.RemoveAll(tx.backupDir)
	} else {
		if err := os.MkdirAll(filepath.Dir(tx.baseDir), 0755); err != nil {
			return fmt.Errorf("create parent directory: %w", err)
		}
		if err := os.Rename(tx.tempDir, tx.baseDir); err != nil {
			return fmt.Errorf("commit base directory (new): %w", err)
		}
	}

	tx.committed = true
	return nil
}

// Rollback removes the staging directory, discarding all changes.
func (tx *CopyOnWriteTx) Rollback() error {
	if tx.committed {
		return fmt.Errorf("cannot rollback committed transaction")
	}

	if err := os.RemoveAll(tx.tempDir); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	return nil
}

func copyDirRecursive(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDirRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copy contents: %w", err)
	}

	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	return nil
}
