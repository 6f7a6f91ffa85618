package libgl

func ExpandShader(source string, defs map[string]string) (name, expanded string) {
	t := parseShaderTemplate(source)
	return t.name, t.expand(defs)
}
