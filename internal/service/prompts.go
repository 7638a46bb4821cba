package service

import (
	"fmt"
	"strings"
)

// 各工具生成动作的提示词模板。模板文本是产品行为的一部分，
// 改动会直接影响生成质量，修改前先在真实模型上回归。

const cvQuestionsPromptTemplate = `
ROLE: You are an expert technical recruiter and hiring manager. Your task is to generate highly targeted interview questions based strictly on the resume (and job description if available). Do NOT assume or invent experience not stated in the resume. If a question is based on inferred skills, label it as: (Assumed - verify with candidate).

INPUT:
RESUME:
%s

%s

OUTPUT REQUIREMENTS:
- Generate exactly 40 interview questions.
- Categorize them into:
    1. Behavioral (4-5 questions)
    2. Technical / Domain-Specific (25-30 questions) again sub-categorize into:
        - Different skill sets or domains as mentioned in the resume (e.g. Python, Six Sigma, Excel, SQL, etc.)
    3. Role Alignment & Career Fit (4-5 questions)
- Each question must be:
    - Clear, concise, and directly tied to the resume and job scope.
    - Written using strong employment and HR vocabulary (competencies, outcomes, ownership, metrics, scope, stakeholder alignment, delivery impact).
- For each question, include a short note in brackets indicating what the interviewer is assessing (e.g., "assessing analytical capability", "evaluating hands-on expertise", "testing ownership and accountability").

CONSTRAINTS:
- Do NOT invent skills or experience that do not appear in the resume.
- Avoid generic or filler questions - they must feel personalized and intentional.
- No hypothetical irrelevant scenarios unless directly tied to the role.

Return only the interview questions in the requested structured format.
`

const cvSkillsPromptTemplate = `
ROLE: You are a professional career strategist, HR consultant, and hiring manager specializing in competency-based evaluation. Analyze the resume strictly based on the provided content. Do NOT infer or fabricate experiences not explicitly present.

INPUT:
RESUME:
%s

OUTPUT FORMAT (follow strictly):

1. **Top 5 Most Evident and Marketable Skills**
   - For each skill:
        - Name of the skill
        - Evidence from resume (quote line or summarize)
        - Type of skill (Technical / Soft / Hybrid)
        - Real-world hiring value (1-2 sentences)

2. **How to Present Each Skill Effectively**
   - Provide clear, recruiter-level phrasing using achievement-driven and metrics-focused language (STAR or CAR style).
   - Include one example rewritten bullet point improvement for each skill.

3. **Questions to Prepare For**
   - 6-10 targeted questions hiring managers could ask to validate the listed skills.
   - Label questions by category: Technical Validation / Experience Depth / Behavioral Competency / Role Positioning.

4. **Skill Gaps to Address**
   - Identify possible missing or weak areas relevant to the resume content and (if strong signals exist) the likely role.
   - Provide:
        - Gap name
        - Why it matters in hiring evaluations
        - Suggested Learning or Upskilling Direction (tools, frameworks, certifications, expected capabilities)

CONSTRAINTS:
- Do not hallucinate certifications, job titles, or achievements.
- If information is missing or unclear, state: "Information insufficient - recommend adding clarity."
- Use recruitment-grade, direct, and actionable wording.

Return information in structured bullet points - no filler commentary.
`

const studyPlanPromptTemplate = `
ROLE: You are an expert curriculum designer and learning strategist. Your task is to create a precise, research-backed study plan based strictly on the given inputs. Do NOT add topics, skills, or timelines not supported by the inputs. If a detail is unclear or unspecified, state it neutrally rather than guessing.

INPUTS:
- Subject: %s
- Duration: %d weeks
- Current Knowledge Level: %s
- Learning Goal: %s
- Daily Study Time: %.1f hours/day
- Preferred Learning Methods: %s

OUTPUT STRUCTURE (follow exactly):

1. **Program Overview**
   - 4-7 sentence summary describing: scope of learning, alignment with input goal, expected difficulty, and learning strategy approach.

2. **Learning Objectives**
   - 6-10 clear, measurable, outcome-focused objectives using high-clarity verbs (e.g., analyze, apply, evaluate, implement, demonstrate).

3. **Week-by-Week Roadmap**
   - For each week:
       - Week number
       - Primary theme or milestone
       - Specific subtopics or modules
       - Expected outcome/end-of-week competency
       - Daily structure example based on provided daily hours and learning methods

   Requirements:
   - Timeline MUST stay aligned with the exact number of weeks and must not shift or condense content.
   - Maintain realistic pacing based on the learner's level and hours/day.

4. **Recommended Resources**
   - Organize by type: Books/Textbooks, Videos/Courses, Tools/Software, Practice Platforms.
   - Only recommend widely available, reputable sources (avoid obscure or unverifiable ones).
   - If a resource may require payment, label it as: (Paid).

5. **Progress and Performance Metrics**
   - Define measurable checkpoints, reflection prompts, assignments, or benchmarks for each phase of the plan.
   - Include frequency of assessment (ex: weekly quiz, monthly project, spaced recall checkpoints).

6. **Success and Retention Strategies**
   - Provide actionable study techniques aligned to the learner's stated methods.
   - Include motivation, time management, revision cycles, spaced repetition, and consistency guidelines.

CONSTRAINTS:
- Do NOT hallucinate niche tools, fake books, or fictional methodologies.
- Keep tone structured, professional, timeline-focused and easy for a learner to follow.
- Ensure clarity of format, proper headings, clean spacing, and logically sequenced instructional design.

Return ONLY the formatted study plan with no extra commentary.
`

const articlePromptTemplate = `Write a comprehensive article on:

Topic: %s
Word Count: %d words
Style: %s
Creativity: %.1f (0=factual, 1=creative)
%s
%s

Requirements:
- Well-researched and accurate
- Engaging and well-structured
- Clear headings
- Professional formatting
- Publication-ready

Write now:`

const codeExplainPromptTemplate = "Provide detailed line-by-line explanation of this code.\n\nCODE:\n```\n%s\n```\n\nExplain what each part does and why it's written that way."

const codeDebugPromptTemplate = "Find errors and issues in this code:\n\nCODE:\n```\n%s\n```\n\nFor each issue: identify it, explain why, provide fix, explain the fix."

const codeOptimizePromptTemplate = "Provide optimization suggestions for this code:\n\nCODE:\n```\n%s\n```\n\nConsider: time complexity, space complexity, readability, best practices."

// buildCvQuestionsPrompt 基于简历与可选的职位描述生成面试题提示词。
func buildCvQuestionsPrompt(resumeText, jobDescription string) string {
	jdSection := ""
	if jobDescription != "" {
		jdSection = "JOB DESCRIPTION:\n" + jobDescription
	}
	return fmt.Sprintf(cvQuestionsPromptTemplate, resumeText, jdSection)
}

// buildCvSkillsPrompt 基于简历生成技能分析提示词。
func buildCvSkillsPrompt(resumeText string) string {
	return fmt.Sprintf(cvSkillsPromptTemplate, resumeText)
}

// buildStudyPlanPrompt 基于学习参数生成学习计划提示词。
func buildStudyPlanPrompt(subject string, durationWeeks int, knowledgeLevel, learningGoal string, dailyHours float64, methods []string) string {
	return fmt.Sprintf(studyPlanPromptTemplate,
		subject, durationWeeks, knowledgeLevel, learningGoal, dailyHours, strings.Join(methods, ", "))
}

// buildArticlePrompt 基于文章参数生成写作提示词。
func buildArticlePrompt(topic string, wordCount int, style string, temperature float64, includeSources, includeTOC bool) string {
	sources := "No external references"
	if includeSources {
		sources = "Include: References"
	}
	toc := ""
	if includeTOC {
		toc = "Include: Table of contents"
	}
	return fmt.Sprintf(articlePromptTemplate, topic, wordCount, style, temperature, sources, toc)
}

// buildCodePrompt 根据动作类型生成代码分析提示词。
func buildCodePrompt(action, code string) (string, bool) {
	switch action {
	case GenerateActionExplain:
		return fmt.Sprintf(codeExplainPromptTemplate, code), true
	case GenerateActionDebug:
		return fmt.Sprintf(codeDebugPromptTemplate, code), true
	case GenerateActionOptimize:
		return fmt.Sprintf(codeOptimizePromptTemplate, code), true
	}
	return "", false
}

// buildSystemContext 组装聊天的系统消息：固定系统提示词加上该工具的上下文材料。
// 上下文文本来自上传提取，产物文本来自最近一次生成动作。
func buildSystemContext(toolKey, systemPrompt, contextText, artifact, jobDescription string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	switch toolKey {
	case ToolKeyCvInterview:
		resume := contextText
		if resume == "" {
			resume = "Not provided"
		}
		jd := jobDescription
		if jd == "" {
			jd = "Not provided"
		}
		fmt.Fprintf(&b, "\nRESUME: %s\nJOB DESCRIPTION: %s", resume, jd)
	case ToolKeyCodeExplainer:
		code := artifact
		if code == "" {
			code = "Not provided"
		}
		fmt.Fprintf(&b, "\n\nCurrent code:\n```\n%s\n```", code)
	case ToolKeyArticleGenerator:
		article := artifact
		if article == "" {
			article = "Not yet generated"
		}
		fmt.Fprintf(&b, "\n\nArticle being edited:\n%s", article)
	case ToolKeyStudyPlan:
		plan := artifact
		if plan == "" {
			plan = "Not yet generated"
		}
		fmt.Fprintf(&b, "\n\nStudy Plan:\n%s", plan)
	}
	return b.String()
}
