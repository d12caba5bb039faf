package wasmgen

// Code emits a function body instruction stream.
// Methods return the receiver so short sequences can be chained.
type Code struct {
	w *Writer
}

// NewCode creates an empty instruction stream.
func NewCode() *Code {
	return &Code{w: NewWriter()}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.w.Bytes()
}

// Len returns the number of encoded bytes.
func (c *Code) Len() int {
	return c.w.Len()
}

// Op writes a bare opcode.
func (c *Code) Op(op byte) *Code {
	c.w.Byte(op)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.w.Byte(OpLocalGet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.w.Byte(OpLocalSet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) LocalTee(idx uint32) *Code {
	c.w.Byte(OpLocalTee)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) GlobalGet(idx uint32) *Code {
	c.w.Byte(OpGlobalGet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) GlobalSet(idx uint32) *Code {
	c.w.Byte(OpGlobalSet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

// I64Load loads 8 bytes. align is the log2 alignment hint.
func (c *Code) I64Load(align, offset uint32) *Code {
	return c.memOp(OpI64Load, align, offset)
}

// I64Store stores 8 bytes. align is the log2 alignment hint.
func (c *Code) I64Store(align, offset uint32) *Code {
	return c.memOp(OpI64Store, align, offset)
}

func (c *Code) I32Load(align, offset uint32) *Code {
	return c.memOp(OpI32Load, align, offset)
}

func (c *Code) I32Store(align, offset uint32) *Code {
	return c.memOp(OpI32Store, align, offset)
}

func (c *Code) memOp(op byte, align, offset uint32) *Code {
	c.w.Byte(op)
	c.w.WriteU32(align)
	c.w.WriteU32(offset)
	return c
}

// Loop opens a void loop block.
func (c *Code) Loop() *Code {
	c.w.Byte(OpLoop)
	c.w.Byte(blockTypeVoid)
	return c
}

// Block opens a void block.
func (c *Code) Block() *Code {
	c.w.Byte(OpBlock)
	c.w.Byte(blockTypeVoid)
	return c
}

// If opens a void if block.
func (c *Code) If() *Code {
	c.w.Byte(OpIf)
	c.w.Byte(blockTypeVoid)
	return c
}

// IfResult opens an if block producing one value of type t.
func (c *Code) IfResult(t ValType) *Code {
	c.w.Byte(OpIf)
	c.w.Byte(byte(t))
	return c
}

func (c *Code) Else() *Code {
	c.w.Byte(OpElse)
	return c
}

func (c *Code) End() *Code {
	c.w.Byte(OpEnd)
	return c
}

func (c *Code) Br(depth uint32) *Code {
	c.w.Byte(OpBr)
	c.w.WriteU32(depth)
	return c
}

func (c *Code) BrIf(depth uint32) *Code {
	c.w.Byte(OpBrIf)
	c.w.WriteU32(depth)
	return c
}

func (c *Code) Call(funcIdx uint32) *Code {
	c.w.Byte(OpCall)
	c.w.WriteU32(funcIdx)
	return c
}

// Raw appends pre-encoded instructions.
func (c *Code) Raw(b []byte) *Code {
	c.w.WriteBytes(b)
	return c
}
