package kcube

import "sync/atomic"

// opState is the coarse open/close lifecycle of a Connection, distinct
// from the motion phase of the axis it drives.
type opState uint32

const (
	closedState opState = iota
	closingState
	openingState
	openedState
)

// atomicOpState provides lock-free lifecycle transitions. The To*
// methods succeed only from the legal predecessor state, so concurrent
// Open/Close calls cannot double-run the lifecycle sequences.
type atomicOpState struct {
	state atomic.Uint32
}

func (st *atomicOpState) String() string {
	switch st.get() {
	case closedState:
		return "Closed"
	case closingState:
		return "Closing"
	case openingState:
		return "Opening"
	case openedState:
		return "Opened"
	default:
		return "Unknown"
	}
}

func (st *atomicOpState) get() opState {
	return opState(st.state.Load())
}

func (st *atomicOpState) set(state opState) {
	st.state.Store(uint32(state))
}

func (st *atomicOpState) isClosed() bool {
	return st.get() == closedState
}

func (st *atomicOpState) isOpened() bool {
	return st.get() == openedState
}

func (st *atomicOpState) toOpening() bool {
	return st.state.CompareAndSwap(uint32(closedState), uint32(openingState))
}

func (st *atomicOpState) toOpened() bool {
	if st.isOpened() {
		return true
	}

	return st.state.CompareAndSwap(uint32(openingState), uint32(openedState))
}

func (st *atomicOpState) toClosing() bool {
	result := st.state.CompareAndSwap(uint32(openedState), uint32(closingState))
	if !result {
		return st.state.CompareAndSwap(uint32(openingState), uint32(closingState))
	}

	return result
}

func (st *atomicOpState) toClosed() bool {
	if st.isClosed() {
		return true
	}

	return st.state.CompareAndSwap(uint32(closingState), uint32(closedState))
}
