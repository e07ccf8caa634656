package buildinfo

const ProjectName = "quizparty"

const GithubURL = "https://github.com/quizparty-games/quizparty"

const Graffiti = `
  __ _ _   _(_)______ __  __ _ _ _| |_ _  _
 / _` + "`" + ` | | | | |_ / '_ \/ _` + "`" + ` | '_|  _| || |
 \__, |\_,_|_/__| .__/\__,_|_|  \__|\_, |
    |_|         |_|                 |__/
`

const GreetingCLI = "%s %s — party quiz server, %s\n"
