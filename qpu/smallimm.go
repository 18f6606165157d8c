package qpu

// smallImmediates lists the values encodable in a read address field
// when a small immediate signal is raised: the integers 0..15 and -16..-1
// followed by the float powers of two from 2^-8 to 2^7.
var smallImmediates = [48]uint32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	0xfffffff0, 0xfffffff1, 0xfffffff2, 0xfffffff3,
	0xfffffff4, 0xfffffff5, 0xfffffff6, 0xfffffff7,
	0xfffffff8, 0xfffffff9, 0xfffffffa, 0xfffffffb,
	0xfffffffc, 0xfffffffd, 0xfffffffe, 0xffffffff,
	0x3b800000, // 2.0^-8
	0x3c000000,
	0x3c800000,
	0x3d000000,
	0x3d800000,
	0x3e000000,
	0x3e800000,
	0x3f000000, // 2.0^-1
	0x3f800000, // 2.0^0
	0x40000000,
	0x40800000,
	0x41000000,
	0x41800000,
	0x42000000,
	0x42800000,
	0x43000000, // 2.0^7
}

// SmallImmPack returns the read address encoding value, or false when the
// value has no small immediate encoding.
func SmallImmPack(value uint32) (uint32, bool) {
	for i, v := range smallImmediates {
		if v == value {
			return uint32(i), true
		}
	}
	return 0, false
}

// SmallImmUnpack returns the value encoded by a small immediate read
// address.
func SmallImmUnpack(packed uint32) (uint32, bool) {
	if packed >= uint32(len(smallImmediates)) {
		return 0, false
	}
	return smallImmediates[packed], true
}
