package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingPool struct {
	freed []uint64
}

func (p *countingPool) Free(mark uint64) {
	p.freed = append(p.freed, mark)
}

func TestRelease_FreesExactlyOnce(t *testing.T) {
	pool := &countingPool{}
	f := New(pool, []byte("data"), 7, 42)

	f.Release()
	f.Release()

	assert.Equal(t, []uint64{42}, pool.freed)
	assert.Nil(t, f.Bytes())
}

func TestLenAndBytes(t *testing.T) {
	f := New(nil, []byte("hello"), 0, 0)
	assert.Equal(t, 5, f.Len())
	assert.Equal(t, []byte("hello"), f.Bytes())
}

func TestRetain_DefersFreeUntilEveryReferenceReleased(t *testing.T) {
	pool := &countingPool{}
	f := New(pool, []byte("data"), 0, 9)

	f.Retain()

	f.Release()
	assert.Empty(t, pool.freed, "buffer must survive while a retained reference is outstanding")
	assert.NotNil(t, f.Bytes(), "buffer must still be readable by the outstanding reference")

	f.Release()
	assert.Equal(t, []uint64{9}, pool.freed)
	assert.Nil(t, f.Bytes())
}
