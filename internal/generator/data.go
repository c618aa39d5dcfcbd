package generator

//
// 合成数据常量池
//

var firstNames = []string{
	"Alex", "Jordan", "Taylor", "Casey", "Robin", "Riley", "Avery", "Quinn",
	"Morgan", "Jamie", "Cameron", "Drew", "Peyton", "Skyler", "Emerson",
}

var lastNames = []string{
	"Johnson", "Smith", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson",
}

type cityState struct {
	City  string
	State string
}

var citiesST = []cityState{
	{"San Francisco", "CA"}, {"Seattle", "WA"}, {"Austin", "TX"},
	{"New York", "NY"}, {"Boston", "MA"}, {"Chicago", "IL"},
	{"Denver", "CO"}, {"Atlanta", "GA"}, {"San Diego", "CA"},
	{"Portland", "OR"}, {"Phoenix", "AZ"}, {"Miami", "FL"},
}

var degrees = []string{
	"Bachelor of Science", "Master of Science", "Bachelor of Engineering", "Master of Engineering",
}

var fields = []string{
	"Computer Science", "Software Engineering", "Information Systems",
	"Electrical Engineering", "Data Science",
}

var companies = []string{
	"TechNova", "BluePeak", "InnoSoft", "CloudLoom", "DataForge",
	"Nextlytics", "BrightHub", "CodeSpring", "QuantumNest", "HyperWeave",
}

var jobTitles = []string{
	"Software Engineer", "Senior Software Engineer", "Backend Engineer",
	"Full Stack Developer", "Data Engineer", "Machine Learning Engineer",
}

var highlightTemplates = []string{
	"Built {thing} using {tech} improving {metric} by {percent}%",
	"Led {count}-person team to deliver {project} on time",
	"Reduced {metric} by {percent}% via {approach}",
	"Designed and implemented {component} with {tech}",
	"Migrated legacy {system} to {cloud} with zero downtime",
}

// skillGroup 技能分组，顺序固定，生成结果的分类顺序与此一致
type skillGroup struct {
	Name  string
	Items []string
}

var skillGroups = []skillGroup{
	{"Programming", []string{"Python", "JavaScript", "TypeScript", "Java", "Go", "C++"}},
	{"Web", []string{"React", "Node.js", "Express", "Django", "Flask", "FastAPI"}},
	{"Data", []string{"Pandas", "NumPy", "scikit-learn", "PyTorch", "TensorFlow", "SQL"}},
	{"Cloud/DevOps", []string{"AWS", "GCP", "Azure", "Docker", "Kubernetes", "Terraform"}},
}

var months = []string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

var emailDomains = []string{"gmail.com", "outlook.com", "proton.me", "yahoo.com"}

var emailSeparators = []string{".", "_", ""}

var institutionBases = []string{"State University", "Tech University", "City College", "Institute of Technology"}

var institutionRegions = []string{"North", "West", "East", "Central", ""}

// 高亮模板的槽位候选
var (
	highlightThings     = []string{"a microservice", "a data pipeline", "a CI/CD system", "an internal SDK", "a real-time API"}
	highlightTechs      = []string{"Python", "Go", "TypeScript", "Kubernetes", "AWS", "PostgreSQL"}
	highlightMetrics    = []string{"latency", "cost", "CPU usage", "error rate", "MTTR"}
	highlightPercents   = []int{15, 20, 25, 30, 40}
	highlightProjects   = []string{"a payments module", "recommendation engine", "feature store", "ETL replatform"}
	highlightApproaches = []string{"caching", "asynchronous processing", "schema optimization", "observability tooling"}
	highlightComponents = []string{"auth gateway", "ingestion pipeline", "model serving layer", "monitoring stack"}
	highlightSystems    = []string{"monolith", "cron farm", "VM cluster"}
	highlightClouds     = []string{"AWS", "GCP", "Azure"}
)
