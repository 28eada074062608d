//go:build linux

package uring

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

func ptrOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// realRing is the Linux implementation of Ring, backed by giouring.
type realRing struct {
	ring   *giouring.Ring
	config Config
}

func newPlatformRing(cfg Config) (Ring, error) {
	params := &giouring.IOUringParams{}
	if cfg.SingleIssuer {
		params.Flags |= giouring.SetupSingleIssuer
	}
	if cfg.DeferTaskrun {
		params.Flags |= giouring.SetupDeferTaskrun
	}
	if cfg.SQPoll {
		params.Flags |= giouring.SetupSQPoll
		if cfg.SQPollIdle > 0 {
			params.SQThreadIdle = uint32(cfg.SQPollIdle / time.Millisecond)
		}
		if cfg.SQPollCPU >= 0 {
			params.Flags |= giouring.SetupSQAff
			params.SQThreadCPU = uint32(cfg.SQPollCPU)
		}
	}
	if cfg.CQSize > 0 {
		params.Flags |= giouring.SetupCQSize
		params.CQEntries = cfg.CQSize
	}

	ring, err := giouring.CreateRingParams(cfg.Entries, params)
	if err != nil {
		return nil, fmt.Errorf("uring: create ring: %w", err)
	}

	return &realRing{ring: ring, config: cfg}, nil
}

func (r *realRing) Close() error {
	r.ring.QueueExit()
	return nil
}

// realBufferRing wraps giouring's BufAndRing. The mask BufRingAdd needs is
// computed once at registration time from the entry count, since
// BufRingMask is a package-level helper rather than a method on br.
type realBufferRing struct {
	owner   *realRing
	br      *giouring.BufAndRing
	groupID uint16
	mask    uint16
}

func (r *realRing) RegisterBufferRing(groupID uint16, entries uint16) (BufferRing, error) {
	br, err := r.ring.SetupBufRing(uint32(entries), groupID, 0)
	if err != nil {
		return nil, fmt.Errorf("uring: register buffer ring %d: %w", groupID, err)
	}
	return &realBufferRing{
		owner:   r,
		br:      br,
		groupID: groupID,
		mask:    giouring.BufRingMask(uint32(entries)),
	}, nil
}

func (b *realBufferRing) GroupID() uint16 { return b.groupID }

func (b *realBufferRing) AddBuffer(id uint16, addr uintptr, length uint32) {
	b.br.BufRingAdd(addr, length, id, b.mask, 0)
}

func (b *realBufferRing) Advance(n int) {
	b.br.BufRingAdvance(n)
}

func (b *realBufferRing) Free() error {
	return b.owner.ring.FreeBufRing(b.br)
}

func (r *realRing) getSQE() (*giouring.SubmissionQueueEntry, error) {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		if _, err := r.ring.Submit(); err != nil {
			return nil, fmt.Errorf("uring: submit while recovering full SQ: %w", err)
		}
		sqe = r.ring.GetSQE()
		if sqe == nil {
			return nil, ErrSubmissionQueueFull
		}
	}
	return sqe, nil
}

func (r *realRing) PrepMultishotAccept(listenFD int32, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareMultishotAccept(int(listenFD), 0, 0, 0)
	sqe.UserData = userData
	return nil
}

func (r *realRing) PrepMultishotReceive(connFD int32, bgid uint16, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareRecvMultishot(int(connFD), 0, 0, 0)
	sqe.Flags |= giouring.SqeBufferSelect
	sqe.BufIG = bgid
	sqe.UserData = userData
	return nil
}

func (r *realRing) PrepSend(connFD int32, data []byte, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareSend(int(connFD), uintptr(ptrOf(data)), uint32(len(data)), 0)
	sqe.UserData = userData
	return nil
}

func (r *realRing) PrepCancel(targetFD int32, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareCancelFd(int(targetFD), 0)
	sqe.UserData = userData
	return nil
}

func (r *realRing) Submit() (uint32, error) {
	return r.ring.Submit()
}

func (r *realRing) SubmitAndWaitTimeout(waitNr uint32, timeout time.Duration) (uint32, error) {
	ts := giouring.Timespec{
		Sec:  int64(timeout / time.Second),
		Nsec: int64(timeout % time.Second),
	}
	return r.ring.SubmitAndWaitTimeout(waitNr, &ts, nil)
}

func (r *realRing) PeekBatchCompletions(batch []Completion) int {
	cqes := make([]*giouring.CompletionQueueEvent, len(batch))
	n := r.ring.PeekBatchCQE(cqes)
	for i := 0; i < n; i++ {
		batch[i] = Completion{
			UserData: cqes[i].UserData,
			Res:      cqes[i].Res,
			Flags:    cqes[i].Flags,
		}
	}
	return n
}

func (r *realRing) AdvanceCompletions(n uint32) {
	r.ring.CQAdvance(n)
}
