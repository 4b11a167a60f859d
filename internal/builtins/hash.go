package builtins

// lpHash is the integer mixing function behind lp_hash. It operates on raw
// bits in both numeric domains, so it is registered as a single
// variant-independent implementation.
func lpHash(v uint32) uint32 {
	// lowbias32 finalizer.
	v ^= v >> 16
	v *= 0x7feb352d
	v ^= v >> 15
	v *= 0x846ca68b
	v ^= v >> 16
	return v
}

func hash2Impl(args []uint32) []uint32 {
	return []uint32{lpHash(args[0] ^ lpHash(args[1]))}
}

func hash3Impl(args []uint32) []uint32 {
	return []uint32{lpHash(args[0] ^ lpHash(args[1]^lpHash(args[2])))}
}
