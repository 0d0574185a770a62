package server

// Seed fills s with a small demo repository. Names cover the cases the
// mirror has to encode: spaces, reserved URL characters and non-ASCII.
func Seed(s *Store) {
	const repo = "Paper470"

	s.PutFile(repo, "README.md", []byte("# Paper 470\n\nArtifact for the anonymous submission.\n"))
	s.PutFile(repo, "LICENSE", []byte("MIT License\n"))
	s.PutFile(repo, "ReverseTool/package.json", []byte(`{"name":"reverse-tool","version":"0.1.0","main":"index.js"}`+"\n"))
	s.PutFile(repo, "ReverseTool/package-lock.json", []byte(`{"name":"reverse-tool","lockfileVersion":2,"requires":true}`+"\n"))
	s.PutFile(repo, "ReverseTool/index.js", []byte("module.exports = (s) => [...s].reverse().join('');\n"))
	s.PutFile(repo, "ReverseTool/test/index.test.js", []byte("const rev = require('..');\nconsole.assert(rev('abc') === 'cba');\n"))
	s.PutFile(repo, "data/results 2022.csv", []byte("run,score\n1,0.91\n2,0.93\n"))
	s.PutFile(repo, "data/notes#1?.txt", []byte("reserved characters in a file name\n"))
	s.PutFile(repo, "data/résumé.txt", []byte("non-ascii file name\n"))
	s.PutDir(repo, "scripts")
}
