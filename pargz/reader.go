// Package pargz implements component J, the public Parallel Reader:
// a random-access decompressor for gzip, BGZF, zlib, and raw deflate
// streams that fans decoding out across a worker pool while presenting
// a single serial read/seek/tell interface to its owner.
//
// Grounded on gsip.Reader's checkpoint-based ReadAt (the Block/Window
// Map lookup that lets a later read resume decoding without starting
// over) and on balanur-hts/bgzf.Reader's virtual offsets and
// decompressor-per-owner model for the BGZF specialization, combined
// with the worker pool and cancellation flag per SPEC_FULL.md
// sections 4.J and 5.
package pargz

import (
	"hash"
	"hash/adler32"
	"hash/crc32"
	"io"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jonjohnsonjr/pargz/bitreader"
	"github.com/jonjohnsonjr/pargz/blockfinder"
	"github.com/jonjohnsonjr/pargz/chunkfetcher"
	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/gzindex"
	"github.com/jonjohnsonjr/pargz/pgerr"
	"github.com/jonjohnsonjr/pargz/prefetch"
	"github.com/jonjohnsonjr/pargz/streamformat"
)

// Reader is the public random-access decompressor. Its exported
// methods (Read, Seek, Tell, Size, SetBlockOffsets, GzipIndex,
// SetCRC32Enabled, BlockOffsets) are the specification's §4.J
// operations table; per the concurrency model they are owning-thread
// only. The batch workers a call spawns are joined before it returns;
// prefetch tasks started by issuePrefetch run in the background and
// may still be running afterwards.
type Reader struct {
	opts options

	src     fsrc.Source
	fetcher *chunkfetcher.Fetcher

	blockMap   *gzindex.Map
	windows    *gzindex.WindowStore
	caches     *prefetch.Caches[*chunkfetcher.Chunk]
	classifier *prefetch.Classifier

	format streamformat.Format

	pos int64

	frontierByte    int64
	frontierBit     int64
	frontierWindow  []byte
	frontierFinal   bool
	memberStartByte int64

	crc hash.Hash32

	totalSize int64
	sizeKnown bool

	cancelled int32
}

// Open builds a Reader over src, which it takes ownership of (src and
// anything cloned from it may be read concurrently by workers for the
// lifetime of the Reader).
func Open(src fsrc.Source, opts ...Option) (*Reader, error) {
	o := resolveOptions(opts)
	if o.parallelism > runtime.NumCPU()*4 {
		o.parallelism = runtime.NumCPU() * 4
	}

	caches, err := prefetch.NewCaches[*chunkfetcher.Chunk](o.parallelism)
	if err != nil {
		return nil, err
	}

	fetcherSrc, err := src.Clone()
	if err != nil {
		return nil, err
	}

	r := &Reader{
		opts:       o,
		src:        src,
		blockMap:   gzindex.NewMap(),
		windows:    gzindex.NewWindowStore(),
		caches:     caches,
		classifier: prefetch.NewClassifier(),
	}
	r.fetcher = chunkfetcher.New(fetcherSrc, r.isCancelled)

	probe, err := src.Clone()
	if err != nil {
		return nil, err
	}
	var hdr [2]byte
	io.ReadFull(probe, hdr[:])
	format, _ := streamformat.Detect(hdr[:])
	if err := r.beginMember(format); err != nil {
		return nil, err
	}
	return r, nil
}

// beginMember consumes one container member's header (or none, for raw
// deflate) from r.src, which must already be positioned at the
// member's start, resetting the frontier to that member's first
// deflate bit (for BGZF, to the member's first byte) with an empty
// predecessor window.
func (r *Reader) beginMember(probed streamformat.Format) error {
	memberStart := r.src.Tell()
	switch probed {
	case streamformat.FormatGzip, streamformat.FormatBGZF:
		f, err := streamformat.ReadGzipMemberHeader(r.src)
		if err != nil {
			return err
		}
		r.format = f
		r.crc = crc32.NewIEEE()
	case streamformat.FormatZlib:
		if err := streamformat.ReadZlibHeader(r.src); err != nil {
			return err
		}
		r.format = streamformat.FormatZlib
		r.crc = adler32.New()
	default:
		r.format = streamformat.FormatRawDeflate
		r.crc = nil
	}
	r.frontierBit = r.src.Tell() * 8
	if r.format == streamformat.FormatBGZF {
		// growBGZFBatch reads each member's header itself.
		r.frontierBit = memberStart * 8
	}
	r.frontierWindow = []byte{}
	r.memberStartByte = r.frontierByte
	return nil
}

func (r *Reader) isCancelled() bool { return atomic.LoadInt32(&r.cancelled) != 0 }

// Close signals cancellation to any in-flight workers. Per the
// specification's resource model, outstanding futures are expected to
// be drained (here: no longer submitted) before the owner discards the
// Reader.
func (r *Reader) Close() error {
	atomic.StoreInt32(&r.cancelled, 1)
	return nil
}

// Read implements io.Reader, growing the decode frontier as needed and
// serving bytes from whichever chunk's checkpoint covers the current
// position.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.growFrontier(r.pos + int64(len(p))); err != nil {
		return 0, err
	}
	if (r.sizeKnown && r.pos >= r.totalSize) || r.pos >= r.frontierByte {
		return 0, io.EOF
	}

	cp, idx, ok := r.blockMap.FindDataOffsetIndex(r.pos)
	if !ok {
		return 0, pgerr.Wrap(pgerr.IndexInconsistent, "pargz: no chunk covers byte %d", r.pos)
	}

	// A logical chunk index, not cp.CompressedBit, is what the
	// classifier needs: consecutive reads land on consecutive indices,
	// while compressed-bit deltas between chunks are never exactly 1,
	// so recording the bit offset itself would make Sequential
	// unreachable.
	r.classifier.Record(int64(idx))
	if r.classifier.Pattern() == prefetch.Sequential {
		r.caches.ClearMain()
		r.issuePrefetch()
	}

	c, ok := r.caches.Get(cp.CompressedBit)
	if !ok {
		window := cp.Window.Bytes
		if cp.Window.Sparse || window == nil {
			window = []byte{}
		}
		fetched, err := r.fetcher.Fetch(cp.CompressedBit, -1, window, false)
		if err != nil {
			return 0, err
		}
		c = fetched
		r.caches.PutDelivered(cp.CompressedBit, c)
	}

	rel := r.pos - cp.UncompressedByte
	if rel < 0 || rel > int64(len(c.Resolved)) {
		return 0, pgerr.Wrap(pgerr.IndexInconsistent, "pargz: chunk/byte offset mismatch at %d", r.pos)
	}
	if rel == int64(len(c.Resolved)) {
		return 0, io.EOF
	}

	n := copy(p, c.Resolved[rel:])
	r.pos += int64(n)
	return n, nil
}

// prefetchIndexAdapter bridges prefetch.Classifier.PrefetchList's
// logical-chunk-index space to Caches' compressed-bit-offset keys, by
// looking the index up in the Block/Window Map.
type prefetchIndexAdapter struct{ r *Reader }

func (a prefetchIndexAdapter) IsCachedOrInflightOrFailed(index int64) bool {
	cp, ok := a.r.blockMap.At(int(index))
	if !ok {
		// Not yet in the map; nothing to prefetch against until
		// growFrontier reaches it, so treat it as not-needed for now.
		return true
	}
	return a.r.caches.IsCachedOrInflightOrFailed(cp.CompressedBit)
}

// issuePrefetch spawns background decode tasks for the chunks the
// classifier's Fetching Strategy predicts will be needed next, once
// Sequential access is detected, per the specification's section 4.I
// read-ahead flow. Each task observes the single-task-per-offset
// invariant via TryMarkInflight/ClearInflight and records success via
// PutPrefetched (guarded by EvictionSafe so two prefetch tasks cannot
// evict each other's pending results) or failure via PutFailed.
func (r *Reader) issuePrefetch() {
	targets := r.classifier.PrefetchList(r.opts.parallelism, prefetchIndexAdapter{r})
	if len(targets) == 0 {
		return
	}
	pending := make([]int64, 0, len(targets))
	for _, idx := range targets {
		if cp, ok := r.blockMap.At(int(idx)); ok {
			pending = append(pending, cp.CompressedBit)
		}
	}
	for _, idx := range targets {
		cp, ok := r.blockMap.At(int(idx))
		if !ok {
			continue
		}
		if !r.caches.TryMarkInflight(cp.CompressedBit) {
			continue
		}
		go func(cp gzindex.Checkpoint) {
			defer r.caches.ClearInflight(cp.CompressedBit)
			window := cp.Window.Bytes
			if cp.Window.Sparse || window == nil {
				window = []byte{}
			}
			c, err := r.fetcher.Fetch(cp.CompressedBit, -1, window, false)
			if err != nil {
				r.caches.PutFailed(cp.CompressedBit)
				return
			}
			if oldest, ok := r.caches.PrefetchOldestKey(); ok && !prefetch.EvictionSafe(oldest, pending) {
				return
			}
			r.caches.PutPrefetched(cp.CompressedBit, c)
		}(cp)
	}
}

// Seek repositions the read cursor. Seeking past a known total size is
// rejected; seeking past an as-yet-unknown size succeeds optimistically
// and a later Read reports io.EOF once growFrontier reaches the true
// end.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		size, ok := r.Size()
		if !ok {
			return 0, pgerr.Wrap(pgerr.IndexInconsistent, "pargz: seek from end before size is known")
		}
		target = size + offset
	default:
		return 0, pgerr.Wrap(pgerr.IndexInconsistent, "pargz: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, pgerr.Wrap(pgerr.IndexInconsistent, "pargz: negative seek position")
	}
	if r.sizeKnown && target > r.totalSize {
		return 0, pgerr.Wrap(pgerr.IndexInconsistent, "pargz: seek past end of stream")
	}
	r.pos = target
	return r.pos, nil
}

// Tell returns the current uncompressed byte offset.
func (r *Reader) Tell() int64 { return r.pos }

// Size returns the total uncompressed size, if the stream has been
// fully decoded or a persisted index has been loaded via
// SetBlockOffsets.
func (r *Reader) Size() (int64, bool) {
	if r.sizeKnown {
		return r.totalSize, true
	}
	return 0, false
}

// SetBlockOffsets installs a previously exported index (see
// GzipIndex), replacing the Block/Window Map and marking the stream's
// full extent known, so subsequent reads never need to decode from the
// beginning.
func (r *Reader) SetBlockOffsets(checkpoints []gzindex.Checkpoint) error {
	if len(checkpoints) == 0 {
		return pgerr.Wrap(pgerr.IndexInconsistent, "pargz: empty index")
	}
	if err := r.verifySparseBoundaries(checkpoints); err != nil {
		return err
	}
	if err := r.blockMap.Load(checkpoints); err != nil {
		return err
	}
	last := checkpoints[len(checkpoints)-1]
	r.frontierBit = last.CompressedBit
	r.frontierByte = last.UncompressedByte
	r.frontierFinal = true
	r.sizeKnown = true
	r.totalSize = last.UncompressedByte
	r.caches.ClearMain()
	return nil
}

// verifySparseBoundaries rejects a loaded index that claims an empty
// ("sparse") window at a checkpoint that is not actually a genuine
// stream/member boundary, per spec.md section 9's open question: a
// BGZF setBlockOffsets path that assumes a sparse window is always
// safe is only correct at true member starts, so a foreign or
// hand-edited index must have that assumption checked, not trusted.
// The very first checkpoint is always exempt: it is the member this
// Reader was opened against, already validated by Open/beginMember.
func (r *Reader) verifySparseBoundaries(checkpoints []gzindex.Checkpoint) error {
	for i, cp := range checkpoints {
		if i == 0 || !cp.Window.Sparse {
			continue
		}
		if r.format != streamformat.FormatGzip && r.format != streamformat.FormatBGZF {
			return pgerr.Wrap(pgerr.IndexInconsistent, "pargz: sparse checkpoint at byte %d is not valid for a %s stream", cp.UncompressedByte, r.format)
		}
		if cp.CompressedBit%8 != 0 {
			return pgerr.Wrap(pgerr.IndexInconsistent, "pargz: sparse checkpoint at bit %d is not byte-aligned, cannot be a member start", cp.CompressedBit)
		}
		probe, err := r.src.Clone()
		if err != nil {
			return err
		}
		if err := probe.Seek(cp.CompressedBit / 8); err != nil {
			return err
		}
		var hdr [2]byte
		if _, err := io.ReadFull(probe, hdr[:]); err != nil {
			return pgerr.Wrap(pgerr.IndexInconsistent, "pargz: sparse checkpoint at byte %d: %v", cp.CompressedBit/8, err)
		}
		if hdr[0] != 0x1F || hdr[1] != 0x8B {
			return pgerr.Wrap(pgerr.IndexInconsistent, "pargz: sparse checkpoint at byte %d does not start a gzip member", cp.CompressedBit/8)
		}
	}
	return nil
}

// GzipIndex snapshots the current Block/Window Map, finalizing it
// first if the stream has been fully decoded.
func (r *Reader) GzipIndex() ([]gzindex.Checkpoint, error) {
	if r.frontierFinal && !r.blockMap.Finalized() {
		if err := r.blockMap.Finalize(r.frontierBit, r.frontierByte); err != nil {
			return nil, err
		}
	}
	return r.blockMap.Snapshot(), nil
}

// SetCRC32Enabled toggles footer checksum verification.
func (r *Reader) SetCRC32Enabled(enabled bool) { r.opts.crc32Enabled = enabled }

// BlockOffsets returns the current Block/Window Map without forcing a
// finalize, reflecting however much of the stream has been decoded so
// far.
func (r *Reader) BlockOffsets() []gzindex.Checkpoint {
	return r.blockMap.Snapshot()
}

// growFrontier decodes forward, via the worker pool, until the
// frontier reaches target or the logical stream (all concatenated
// members) ends.
func (r *Reader) growFrontier(target int64) error {
	for !r.frontierFinal && r.frontierByte < target {
		var err error
		if r.format == streamformat.FormatBGZF {
			err = r.growBGZFBatch()
		} else {
			err = r.growDeflateBatch()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// growDeflateBatch decodes one batch of up to parallelism chunks of a
// plain gzip/zlib/raw-deflate member. The first chunk continues from
// the known frontier; later chunks in the batch start at bit offsets
// guessed from the configured chunk size and confirmed by the Block
// Finder, so they can be decoded concurrently via the
// marker-resolution path before the predecessor's window is known.
// Each chunk but the last stops once it reaches the next one's start.
func (r *Reader) growDeflateBatch() error {
	type task struct {
		startBit int64
		window   []byte // non-nil only for the batch's first task
	}
	tasks := []task{{startBit: r.frontierBit, window: r.frontierWindow}}

	guessBit := r.frontierBit
	chunkBits := r.opts.chunkSize * 8
	for k := 1; k < r.opts.parallelism; k++ {
		guessBit += chunkBits
		clone, err := r.src.Clone()
		if err != nil {
			return err
		}
		br, err := bitreader.New(clone, guessBit)
		if err != nil {
			break
		}
		startBit, found, err := blockfinder.FindNextBlockStart(br, guessBit+2*chunkBits)
		if err != nil {
			return err
		}
		if !found {
			break
		}
		tasks = append(tasks, task{startBit: startBit})
		guessBit = startBit
	}

	results := make([]*chunkfetcher.Chunk, len(tasks))
	var eg errgroup.Group
	for i, t := range tasks {
		i, t := i, t
		until := int64(-1)
		if i+1 < len(tasks) {
			until = tasks[i+1].startBit
		}
		eg.Go(func() error {
			var c *chunkfetcher.Chunk
			var err error
			r.opts.gilHook(func() {
				c, err = r.fetcher.Fetch(t.startBit, until, t.window, false)
			})
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	window := r.frontierWindow
	for _, c := range results {
		if c == nil {
			continue
		}
		if c.EncodedOffset != r.frontierBit {
			// The previous chunk ran past this one's start, so that
			// start was not a real block boundary; the next batch
			// resumes from the frontier.
			break
		}
		if c.HasMarkers() {
			if err := c.Resolve(window); err != nil {
				return err
			}
		}
		nextWindow, final, err := r.commitChunkSplit(c, window)
		if err != nil {
			return err
		}
		window = nextWindow
		if final {
			if err := r.onMemberFinal(); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// growBGZFBatch decodes one batch of up to parallelism independent
// BGZF members, whose boundaries are known exactly from each member's
// BSIZE extra field rather than guessed, so every task in the batch
// decodes with the final library-backed path from the start.
func (r *Reader) growBGZFBatch() error {
	type task struct {
		startByte  int64
		memberSize int
	}
	var tasks []task
	byteOff := r.frontierBit / 8
	for i := 0; i < r.opts.parallelism; i++ {
		clone, err := r.src.Clone()
		if err != nil {
			return err
		}
		off, size, found, err := blockfinder.FindNextBGZFBlockStart(clone, byteOff)
		if err != nil {
			return err
		}
		if !found {
			break
		}
		tasks = append(tasks, task{startByte: off, memberSize: size})
		byteOff = off + int64(size)
	}
	if len(tasks) == 0 {
		r.frontierFinal = true
		r.sizeKnown = true
		r.totalSize = r.frontierByte
		return nil
	}

	results := make([]*chunkfetcher.Chunk, len(tasks))
	var eg errgroup.Group
	for i, t := range tasks {
		i, t := i, t
		eg.Go(func() error {
			clone, err := r.src.Clone()
			if err != nil {
				return err
			}
			if err := clone.Seek(t.startByte); err != nil {
				return err
			}
			if _, err := streamformat.ReadGzipMemberHeader(clone); err != nil {
				return err
			}
			bodyStartBit := clone.Tell() * 8
			bodyEndBit := (t.startByte + int64(t.memberSize) - streamformat.GzipFooterSize) * 8
			var c *chunkfetcher.Chunk
			r.opts.gilHook(func() {
				c, err = r.fetcher.Fetch(bodyStartBit, bodyEndBit, []byte{}, true)
			})
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, c := range results {
		if c == nil {
			continue
		}
		startByte := r.frontierByte
		cp := gzindex.Checkpoint{CompressedBit: c.EncodedOffset, UncompressedByte: startByte, Window: gzindex.Window{Sparse: true}}
		if err := r.blockMap.Insert(cp); err != nil {
			return err
		}
		r.windows.Put(c.EncodedOffset, cp.Window)
		r.caches.PutDelivered(c.EncodedOffset, c)

		footerByte := tasks[i].startByte + int64(tasks[i].memberSize) - streamformat.GzipFooterSize
		if r.opts.crc32Enabled {
			crc, isize, err := streamformat.ReadGzipFooter(r.src, footerByte)
			if err != nil {
				return err
			}
			if crc32.ChecksumIEEE(c.Resolved) != crc {
				return pgerr.Wrap(pgerr.ChecksumMismatch, "pargz: bgzf member at byte %d", tasks[i].startByte)
			}
			if uint32(c.DecodedSize) != isize {
				return pgerr.Wrap(pgerr.SizeMismatch, "pargz: bgzf member at byte %d", tasks[i].startByte)
			}
		}

		r.frontierByte += c.DecodedSize
		r.frontierBit = (tasks[i].startByte + int64(tasks[i].memberSize)) * 8
	}
	r.frontierWindow = []byte{}
	return nil
}

// commitChunkSplit splits c at its recorded internal block boundaries
// when its decoded size exceeds chunkfetcher.SplitThreshold, per the
// specification's oversized-chunk splitting rule, then commits each
// resulting piece as its own checkpoint in turn, so a later random
// read lands on a far finer-grained entry than "the whole chunk this
// worker happened to decode in one pass." It returns the window left
// behind by the last piece and whether c.Final (the deflate stream's
// end) was reached.
func (r *Reader) commitChunkSplit(c *chunkfetcher.Chunk, window []byte) ([]byte, bool, error) {
	subs := []*chunkfetcher.Chunk{c}
	if c.DecodedSize > chunkfetcher.SplitThreshold {
		subs = chunkfetcher.Split(c)
	}
	for _, sub := range subs {
		if err := r.commitChunk(sub, window); err != nil {
			return nil, false, err
		}
		window = sub.FinalWindow
	}
	return window, c.Final, nil
}

// commitChunk records a resolved chunk's checkpoint, window, and cache
// entry, accumulates it into the running container checksum, and
// advances the frontier past it. A chunk that decoded no bytes (an
// empty member) gets no checkpoint, since its uncompressed offset
// would repeat the next chunk's.
func (r *Reader) commitChunk(c *chunkfetcher.Chunk, window []byte) error {
	if c.DecodedSize == 0 {
		r.frontierBit = c.EncodedOffset + c.EncodedSize
		r.frontierWindow = c.FinalWindow
		return nil
	}
	startByte := r.frontierByte
	cp := gzindex.Checkpoint{CompressedBit: c.EncodedOffset, UncompressedByte: startByte}
	if len(window) == 0 {
		cp.Window = gzindex.Window{Sparse: true}
	} else {
		cp.Window = gzindex.Window{Bytes: append([]byte(nil), window...)}
	}
	if err := r.blockMap.Insert(cp); err != nil {
		return err
	}
	r.windows.Put(c.EncodedOffset, cp.Window)
	r.caches.PutDelivered(c.EncodedOffset, c)

	if r.crc != nil && r.opts.crc32Enabled {
		r.crc.Write(c.Resolved)
	}

	r.frontierByte += c.DecodedSize
	r.frontierBit = c.EncodedOffset + c.EncodedSize
	r.frontierWindow = c.FinalWindow
	return nil
}

// onMemberFinal runs when a chunk's decode stopped at a deflate
// stream's final block: it verifies the just-finished member's footer
// (if any) and either begins the next concatenated member or marks the
// logical stream done.
func (r *Reader) onMemberFinal() error {
	footerByte := (r.frontierBit + 7) / 8

	switch r.format {
	case streamformat.FormatRawDeflate:
		r.frontierFinal = true
		r.sizeKnown = true
		r.totalSize = r.frontierByte
		return nil

	case streamformat.FormatZlib:
		if r.opts.crc32Enabled {
			sum, err := streamformat.ReadZlibFooter(r.src, footerByte)
			if err != nil {
				return err
			}
			if sum != r.crc.Sum32() {
				return pgerr.Wrap(pgerr.ChecksumMismatch, "pargz: zlib adler32 mismatch")
			}
		}
		r.frontierFinal = true
		r.sizeKnown = true
		r.totalSize = r.frontierByte
		return nil

	default: // gzip, including individual BGZF-looking members reached via plain concatenation
		if r.opts.crc32Enabled {
			crc, isize, err := streamformat.ReadGzipFooter(r.src, footerByte)
			if err != nil {
				return err
			}
			if crc != r.crc.Sum32() {
				return pgerr.Wrap(pgerr.ChecksumMismatch, "pargz: gzip crc32 mismatch")
			}
			if isize != uint32(r.frontierByte-r.memberStartByte) {
				return pgerr.Wrap(pgerr.SizeMismatch, "pargz: gzip isize mismatch")
			}
		}
		nextByte := footerByte + streamformat.GzipFooterSize
		more, err := r.hasMoreAt(nextByte)
		if err != nil {
			return err
		}
		if !more {
			r.frontierFinal = true
			r.sizeKnown = true
			r.totalSize = r.frontierByte
			return nil
		}
		probe, err := r.src.Clone()
		if err != nil {
			return err
		}
		if err := probe.Seek(nextByte); err != nil {
			return err
		}
		var hdr [2]byte
		io.ReadFull(probe, hdr[:])
		format, _ := streamformat.Detect(hdr[:])
		if err := r.src.Seek(nextByte); err != nil {
			return err
		}
		return r.beginMember(format)
	}
}

// hasMoreAt reports whether src has any byte at or after byteOffset.
func (r *Reader) hasMoreAt(byteOffset int64) (bool, error) {
	if size, ok := r.src.Size(); ok {
		return byteOffset < size, nil
	}
	probe, err := r.src.Clone()
	if err != nil {
		return false, err
	}
	if err := probe.Seek(byteOffset); err != nil {
		return false, err
	}
	var b [1]byte
	n, err := probe.Read(b[:])
	if n > 0 {
		return true, nil
	}
	if err == io.EOF {
		return false, nil
	}
	return false, err
}
