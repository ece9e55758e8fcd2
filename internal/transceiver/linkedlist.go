package transceiver

import "context"

// linkedListNode is one decoded step of a heap- or iobuf-style singly
// linked list living in a chip's SDRAM.
type linkedListNode struct {
	Address     uint32
	NextAddress uint32
	Payload     []byte
}

// walkLinkedList follows a singly linked list starting at startAddress,
// calling readNode once per node to decode its next-pointer (and whatever
// payload that node carries). It stops once a node's next-pointer is zero.
// GetHeap and GetIOBuf share this walk; only their node layouts differ
// (original_source processes/get_heap_process.py's HEAP_POINTER/
// ELEMENT_HEADER structs vs read_iobuf_process.py's iobuf header).
func walkLinkedList(ctx context.Context, startAddress uint32, readNode func(ctx context.Context, address uint32) (linkedListNode, error)) ([]linkedListNode, error) {
	var nodes []linkedListNode
	address := startAddress
	for address != 0 {
		node, err := readNode(ctx, address)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
		address = node.NextAddress
	}
	return nodes, nil
}
