package workflow

const summaryPrompt = `You are a research paper summarizer. Create a clear, plain English summary of this paper.

Title: %s
Abstract: %s

Requirements:
- Write 3-5 lines maximum
- Use simple, accessible language
- Focus on the main contribution and findings
- Avoid technical jargon where possible
- Make it engaging and easy to understand

Provide ONLY the summary text, no additional formatting or labels.`

const whyItMattersPrompt = `You are a research impact analyst. Explain why this research matters.

Title: %s
Abstract: %s
Summary: %s

Requirements:
- Explain the significance and potential impact
- Write 2-4 sentences
- Focus on real-world implications
- Be specific about who benefits and how
- Use clear, compelling language

Provide ONLY the explanation text, no additional formatting or labels.`

const applicationsPrompt = `You are a technology applications expert. Identify practical applications for this research.

Title: %s
Abstract: %s
Summary: %s

Requirements:
- List 3-5 specific, practical applications
- Focus on real-world use cases
- Be concrete and specific
- Each application should be 1-2 sentences
- Format as a JSON array of strings

Example format:
["Application 1 description", "Application 2 description", "Application 3 description"]

Provide ONLY the JSON array, no additional text or formatting.`
