package evidence

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if s.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", s.Driver())
	}
	info, err := s.Put(ctx, "disputes/p1/a", bytes.NewReader([]byte("hello")), PutOptions{ContentType: "text/plain", Metadata: map[string]string{"actor": "client-1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ContentType != "text/plain" || info.Checksum == "" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := s.Put(ctx, "disputes/p1/a", bytes.NewReader([]byte("hello")), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}
	got, rc, err := s.Get(ctx, "disputes/p1/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("content mismatch: %q", string(b))
	}
	if got.Checksum != info.Checksum {
		t.Fatalf("checksum mismatch")
	}
	if _, err := s.Put(ctx, "disputes/p2/b", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	infos, err := s.List(ctx, "disputes/p1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "disputes/p1/a" {
		t.Fatalf("unexpected list result: %+v", infos)
	}
	existed, err := s.Delete(ctx, "disputes/p1/a")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, err := s.Head(ctx, "disputes/p1/a"); err == nil {
		t.Fatalf("expected head after delete to fail")
	}
}

func TestFilesystemStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", s.Driver())
	}
	info, err := s.Put(ctx, "disputes/p1/a", strings.NewReader("payload"), PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.Checksum == "" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if _, err := s.Put(ctx, "disputes/p1/a", strings.NewReader("payload"), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}
	head, err := s.Head(ctx, "disputes/p1/a")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ContentType != "application/octet-stream" {
		t.Fatalf("lost content type: %+v", head)
	}
	_, rc, err := s.Get(ctx, "disputes/p1/a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "payload" {
		t.Fatalf("content mismatch: %q", string(b))
	}
	infos, err := s.List(ctx, "disputes/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %+v", err, infos)
	}
	existed, err := s.Delete(ctx, "disputes/p1/a")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = s.Delete(ctx, "disputes/p1/a")
	if err != nil || existed {
		t.Fatalf("second delete should report missing: existed=%v err=%v", existed, err)
	}
}

func TestFilesystemStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	bad := []string{"", "  ", "../escape", "a/../../b", "/absolute"}
	for _, key := range bad {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestArchiveIsContentAddressedAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	content := []byte("screenshots and correspondence")
	key1, err := Archive(ctx, s, "proj-1", content, "text/plain")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(key1, "disputes/proj-1/") {
		t.Fatalf("unexpected key: %s", key1)
	}
	key2, err := Archive(ctx, s, "proj-1", content, "text/plain")
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if key1 != key2 {
		t.Fatalf("same content must resolve to same key: %s vs %s", key1, key2)
	}
	infos, err := s.List(ctx, "disputes/proj-1/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("expected single stored object: %v %+v", err, infos)
	}
	otherKey, err := Archive(ctx, s, "proj-1", []byte("different"), "text/plain")
	if err != nil {
		t.Fatalf("archive different: %v", err)
	}
	if otherKey == key1 {
		t.Fatalf("different content must not collide")
	}
}

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	ctx := context.Background()
	t.Setenv("ESCROWCORE_EVIDENCE_DRIVER", "memory")
	s, err := Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", s.Driver())
	}

	t.Setenv("ESCROWCORE_EVIDENCE_DRIVER", "fs")
	t.Setenv("ESCROWCORE_EVIDENCE_FS_ROOT", t.TempDir())
	s, err = Open(ctx)
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if s.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", s.Driver())
	}

	t.Setenv("ESCROWCORE_EVIDENCE_DRIVER", "bogus")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
