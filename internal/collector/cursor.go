package collector

// FileCursor is the per-source tracking state a Collector holds exclusively.
// FileID is the platform-stable identity used to detect rotation; Offset is
// the number of bytes consumed from the current file, including the bytes
// held in Partial; Partial is the trailing fragment read past the last
// newline, not yet emitted.
type FileCursor struct {
	FileID  uint64
	Offset  int64
	Partial []byte
}

// reset clears the cursor to start reading a file from byte zero, used on
// both rotation (new file_id) and truncation (same file_id, shorter length).
func (c *FileCursor) reset(fileID uint64) {
	c.FileID = fileID
	c.Offset = 0
	c.Partial = c.Partial[:0]
}
