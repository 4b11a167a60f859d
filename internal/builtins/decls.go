package builtins

// StandardDecls returns the builtin declarations shipped with the compiler.
// Symbols follow the __lpfx_<name>_<f32|q32> convention so generated code and
// the embedded runtime agree on linker names.
func StandardDecls() []*Decl {
	in := func(types ...Type) []Param {
		out := make([]Param, len(types))
		for i, t := range types {
			out[i] = Param{Type: t, Qual: QualIn}
		}
		return out
	}

	return []*Decl{
		{
			Name: "lpfx_hue2rgb", Params: in(TFloat), Return: TVec3,
			NumericDependent: true, Variant: VariantFloat,
			Symbol: "__lpfx_hue2rgb_f32", Site: "builtins/color.go:hue2rgbFloatImpl",
			Impl: hue2rgbFloatImpl,
		},
		{
			Name: "lpfx_hue2rgb", Params: in(TFloat), Return: TVec3,
			NumericDependent: true, Variant: VariantFixedPoint,
			Symbol: "__lpfx_hue2rgb_q32", Site: "builtins/color.go:hue2rgbFixedImpl",
			Impl: hue2rgbFixedImpl,
		},
		{
			Name: "lpfx_hsv2rgb", Params: in(TVec3), Return: TVec3,
			NumericDependent: true, Variant: VariantFloat,
			Symbol: "__lpfx_hsv2rgb_f32", Site: "builtins/color.go:hsv2rgbFloatImpl",
			Impl: hsv2rgbFloatImpl,
		},
		{
			Name: "lpfx_hsv2rgb", Params: in(TVec3), Return: TVec3,
			NumericDependent: true, Variant: VariantFixedPoint,
			Symbol: "__lpfx_hsv2rgb_q32", Site: "builtins/color.go:hsv2rgbFixedImpl",
			Impl: hsv2rgbFixedImpl,
		},
		{
			Name: "lpfx_rgb2hsv", Params: in(TVec3), Return: TVec3,
			NumericDependent: true, Variant: VariantFloat,
			Symbol: "__lpfx_rgb2hsv_f32", Site: "builtins/color.go:rgb2hsvFloatImpl",
			Impl: rgb2hsvFloatImpl,
		},
		{
			Name: "lpfx_rgb2hsv", Params: in(TVec3), Return: TVec3,
			NumericDependent: true, Variant: VariantFixedPoint,
			Symbol: "__lpfx_rgb2hsv_q32", Site: "builtins/color.go:rgb2hsvFixedImpl",
			Impl: rgb2hsvFixedImpl,
		},
		{
			Name: "lpfx_norm3", Params: in(TVec3), Return: TVec3,
			NumericDependent: true, Variant: VariantFloat,
			Symbol: "__lpfx_norm3_f32", Site: "builtins/vec.go:norm3FloatImpl",
			Impl: norm3FloatImpl,
		},
		{
			Name: "lpfx_norm3", Params: in(TVec3), Return: TVec3,
			NumericDependent: true, Variant: VariantFixedPoint,
			Symbol: "__lpfx_norm3_q32", Site: "builtins/vec.go:norm3FixedImpl",
			Impl: norm3FixedImpl,
		},
		{
			Name: "lp_hash", Params: in(TUint, TUint), Return: TUint,
			Symbol: "__lp_hash_2", Site: "builtins/hash.go:hash2Impl",
			Impl: hash2Impl,
		},
		{
			Name: "lp_hash", Params: in(TUint, TUint, TUint), Return: TUint,
			Symbol: "__lp_hash_3", Site: "builtins/hash.go:hash3Impl",
			Impl: hash3Impl,
		},
	}
}
