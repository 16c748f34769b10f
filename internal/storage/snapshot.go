package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/san-kum/physlink/internal/dynamo"
)

// Snapshot file layout, big endian:
//
//	magic    [4]byte "PLSN"
//	format   uint16
//	verLen   uint16
//	version  [verLen]byte engine version
//	blobLen  uint32
//	checksum uint32 CRC-32C over version and blob
//	blob     [blobLen]byte
const (
	FormatVersion = 1
	maxBlobSize   = 256 << 20
)

var magic = [4]byte{'P', 'L', 'S', 'N'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func checksum(version string, blob []byte) uint32 {
	h := crc32.New(castagnoli)
	h.Write([]byte(version))
	h.Write(blob)
	return h.Sum32()
}

// WriteSnapshot writes an engine blob with its header.
func WriteSnapshot(w io.Writer, engineVersion string, blob []byte) error {
	if len(engineVersion) > 0xffff {
		return fmt.Errorf("engine version too long: %d bytes", len(engineVersion))
	}
	if len(blob) > maxBlobSize {
		return fmt.Errorf("snapshot blob too large: %d bytes", len(blob))
	}
	var hdr bytes.Buffer
	hdr.Write(magic[:])
	binary.Write(&hdr, binary.BigEndian, uint16(FormatVersion))
	binary.Write(&hdr, binary.BigEndian, uint16(len(engineVersion)))
	hdr.WriteString(engineVersion)
	binary.Write(&hdr, binary.BigEndian, uint32(len(blob)))
	binary.Write(&hdr, binary.BigEndian, checksum(engineVersion, blob))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(blob)
	return err
}

// ReadSnapshot validates and returns the blob and the engine version that
// wrote it. A damaged file is ErrCorruptSnapshot. When wantVersion is not
// empty, a blob from another engine version is ErrIncompatibleSnapshot.
func ReadSnapshot(r io.Reader, wantVersion string) ([]byte, string, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, "", corrupt("read magic: %v", err)
	}
	if m != magic {
		return nil, "", corrupt("bad magic %q", m[:])
	}
	var format, verLen uint16
	if err := binary.Read(r, binary.BigEndian, &format); err != nil {
		return nil, "", corrupt("read format: %v", err)
	}
	if format != FormatVersion {
		return nil, "", fmt.Errorf("%w: file format %d, want %d", dynamo.ErrIncompatibleSnapshot, format, FormatVersion)
	}
	if err := binary.Read(r, binary.BigEndian, &verLen); err != nil {
		return nil, "", corrupt("read version length: %v", err)
	}
	ver := make([]byte, verLen)
	if _, err := io.ReadFull(r, ver); err != nil {
		return nil, "", corrupt("read version: %v", err)
	}
	var blobLen, sum uint32
	if err := binary.Read(r, binary.BigEndian, &blobLen); err != nil {
		return nil, "", corrupt("read blob length: %v", err)
	}
	if blobLen > maxBlobSize {
		return nil, "", corrupt("blob length %d exceeds limit", blobLen)
	}
	if err := binary.Read(r, binary.BigEndian, &sum); err != nil {
		return nil, "", corrupt("read checksum: %v", err)
	}
	blob := make([]byte, blobLen)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, "", corrupt("read blob: %v", err)
	}
	version := string(ver)
	if got := checksum(version, blob); got != sum {
		return nil, "", corrupt("checksum %08x, header says %08x", got, sum)
	}
	if wantVersion != "" && version != wantVersion {
		return nil, version, fmt.Errorf("%w: written by %q, engine is %q", dynamo.ErrIncompatibleSnapshot, version, wantVersion)
	}
	return blob, version, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", dynamo.ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

// WriteSnapshotFile writes through a temporary file and renames it into place.
func WriteSnapshotFile(path, engineVersion string, blob []byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := WriteSnapshot(bw, engineVersion, blob); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshotFile(path, wantVersion string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return ReadSnapshot(bufio.NewReader(f), wantVersion)
}
